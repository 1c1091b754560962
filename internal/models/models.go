package models

// Thumbnail is the subset of a record's thumbnail document we read.
type Thumbnail struct {
	PublicURL string `bson:"publicUrl,omitempty"`
}

// Record is a read-only view of one document from the records collection.
type Record struct {
	ID        string
	Thumbnail *Thumbnail
}

// Locator returns the thumbnail's public URL, or "" if the record has none.
func (r Record) Locator() string {
	if r.Thumbnail == nil {
		return ""
	}
	return r.Thumbnail.PublicURL
}

// OutcomeKind classifies what happened to a single record.
type OutcomeKind int

const (
	Success OutcomeKind = iota
	SkippedNoThumbnail
	FailedWrongURI
	FailedSiteUnavailable
	FailedFileUnavailable
)

func (k OutcomeKind) String() string {
	switch k {
	case Success:
		return "success"
	case SkippedNoThumbnail:
		return "no_thumbnail"
	case FailedWrongURI:
		return "wrong_uri"
	case FailedSiteUnavailable:
		return "site_unavailable"
	case FailedFileUnavailable:
		return "file_unavailable"
	default:
		return "unknown"
	}
}

// Message is the human readable progress text for the kind.
func (k OutcomeKind) Message() string {
	switch k {
	case Success:
		return "Download Complete"
	case SkippedNoThumbnail:
		return "No thumbnail or public link"
	case FailedWrongURI:
		return "Wrong link format"
	case FailedSiteUnavailable:
		return "Site is unavailable"
	case FailedFileUnavailable:
		return "File is unavailable"
	default:
		return "Unknown outcome"
	}
}

// Outcome is the terminal classification of one record's processing attempt.
type Outcome struct {
	RecordID string
	Kind     OutcomeKind
	Locator  string
	Path     string // set on Success
	Err      error
}

// Message renders the progress text, quoting the offending locator for
// malformed links.
func (o Outcome) Message() string {
	if o.Kind == FailedWrongURI {
		return o.Kind.Message() + `: "` + o.Locator + `"`
	}
	return o.Kind.Message()
}
