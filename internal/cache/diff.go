package cache

import "strings"

// Field names reported by Compare, in the fixed order fields are examined.
const (
	FieldTitle      = "title"
	FieldOwner      = "owner"
	FieldCover      = "cover"
	FieldAvatar     = "avatar"
	FieldIsLive     = "isLive"
	FieldHeat       = "heat"
	FieldViewerText = "viewerText"
)

// Diff is the result of comparing two cache entry snapshots.
type Diff struct {
	Changed bool
	Fields  []string
}

// Compare reports which semantically meaningful fields differ between prev
// and next. Bookkeeping fields (error/stale/loading flags, timestamps, and
// the diff result itself) are excluded. A nil prev is treated as a zero
// entry, so a first observation reports every populated field as changed.
// Compare is deterministic and mutates neither input.
func Compare(prev, next *Entry) Diff {
	if prev == nil {
		prev = &Entry{}
	}

	var fields []string
	if prev.Title != next.Title {
		fields = append(fields, FieldTitle)
	}
	if prev.Owner != next.Owner {
		fields = append(fields, FieldOwner)
	}
	if prev.Cover != next.Cover {
		fields = append(fields, FieldCover)
	}
	if prev.Avatar != next.Avatar {
		fields = append(fields, FieldAvatar)
	}
	if prev.IsLive != next.IsLive {
		fields = append(fields, FieldIsLive)
	}
	if prev.Heat != next.Heat {
		fields = append(fields, FieldHeat)
	}
	if prev.ViewerText != next.ViewerText {
		fields = append(fields, FieldViewerText)
	}

	return Diff{
		Changed: len(fields) > 0,
		Fields:  fields,
	}
}

// Summarize renders the diff as a short human-readable string for logging.
func (d Diff) Summarize() string {
	if !d.Changed {
		return "no changes"
	}
	return strings.Join(d.Fields, ", ")
}
