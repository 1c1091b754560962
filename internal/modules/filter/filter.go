package filter

import (
	"go.mongodb.org/mongo-driver/v2/bson"
)

// Filter narrows which records a run processes. A zero Filter matches all
// records. Filters are built once and never modified.
type Filter struct {
	createdBy string
	folder    string
}

// Build returns a Filter for the optional user and folder identifiers.
// An empty identifier omits that constraint.
func Build(userID, folderID string) Filter {
	return Filter{createdBy: userID, folder: folderID}
}

// CreatedBy returns the user constraint, or "" if unset.
func (f Filter) CreatedBy() string { return f.createdBy }

// Folder returns the folder constraint, or "" if unset.
func (f Filter) Folder() string { return f.folder }

// IsEmpty reports whether the filter matches every record.
func (f Filter) IsEmpty() bool {
	return f.createdBy == "" && f.folder == ""
}

// BSON renders the filter as a MongoDB query document.
//
// createdBy is stored as an ObjectID, so a hex identifier is converted; any
// other value is passed through verbatim and left for the store to reject
// or not match. folder is stored as a plain string.
func (f Filter) BSON() bson.M {
	q := bson.M{}
	if f.createdBy != "" {
		if oid, err := bson.ObjectIDFromHex(f.createdBy); err == nil {
			q["createdBy"] = oid
		} else {
			q["createdBy"] = f.createdBy
		}
	}
	if f.folder != "" {
		q["folder"] = f.folder
	}
	return q
}

// Match evaluates the filter against a record's owner and folder.
func (f Filter) Match(createdBy, folder string) bool {
	if f.createdBy != "" && f.createdBy != createdBy {
		return false
	}
	if f.folder != "" && f.folder != folder {
		return false
	}
	return true
}
