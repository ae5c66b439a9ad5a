package partitioner

// RecordKind classifies a bibliographic record by its place in a multi-volume hierarchy.
type RecordKind int

const (
	KindStandalone RecordKind = iota
	KindHead
	KindSection
	KindVolume
)

// RecordInfo is what the partitioner learns about a record from MARC fields 001 and 004.
type RecordInfo struct {
	ID      string
	Agency  string
	Kind    RecordKind
	Deleted bool
}

type marcSubfield struct {
	Code  string
	Value string
}

type marcField struct {
	Tag       string
	Subfields []marcSubfield
}

// recordInfo extracts identity and hierarchy from fields. It returns nil when neither
// field 001 nor field 004 is present.
func recordInfo(fields []marcField) *RecordInfo {
	var (
		info  RecordInfo
		found bool
	)
	for _, f := range fields {
		switch f.Tag {
		case "001":
			found = true
			for _, sf := range f.Subfields {
				switch sf.Code {
				case "a":
					info.ID = sf.Value
				case "b":
					info.Agency = sf.Value
				}
			}
		case "004":
			found = true
			for _, sf := range f.Subfields {
				switch sf.Code {
				case "r":
					info.Deleted = sf.Value == "d"
				case "a":
					switch sf.Value {
					case "h":
						info.Kind = KindHead
					case "s":
						info.Kind = KindSection
					case "b":
						info.Kind = KindVolume
					default:
						info.Kind = KindStandalone
					}
				}
			}
		}
	}
	if !found {
		return nil
	}
	return &info
}
