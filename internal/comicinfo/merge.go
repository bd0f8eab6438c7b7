package comicinfo

import (
	"fmt"
	"strings"
)

// Policy selects how a candidate record is combined with the record already
// stored in an archive.
type Policy int

const (
	// ReplaceAll stores the candidate as is.
	ReplaceAll Policy = iota

	// MergeShared takes the series-wide fields from the candidate and keeps
	// the per-chapter fields of the existing record.
	MergeShared

	// DeriveFromFilename takes title, translator, number and volume from the
	// candidate.
	DeriveFromFilename

	// VolumeOnly takes only the volume from the candidate.
	VolumeOnly
)

var policyNames = [...]string{"replace", "merge-shared", "derive", "volume"}

// Policies lists every policy in declaration order.
var Policies = []Policy{ReplaceAll, MergeShared, DeriveFromFilename, VolumeOnly}

func (p Policy) String() string {
	if p < 0 || int(p) >= len(policyNames) {
		return fmt.Sprintf("Policy(%d)", int(p))
	}
	return policyNames[p]
}

// ParsePolicy resolves a policy name as printed by String.
func ParsePolicy(s string) (Policy, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for i, name := range policyNames {
		if s == name {
			return Policy(i), nil
		}
	}
	return 0, fmt.Errorf("unknown merge policy %q (want one of %s)", s, strings.Join(policyNames[:], ", "))
}

// Apply combines existing and candidate. The result shares no memory with
// either argument.
func (p Policy) Apply(existing, candidate ComicInfo) ComicInfo {
	switch p {
	case ReplaceAll:
		return candidate.Clone()

	case MergeShared:
		out := existing.Clone()
		out.Series = candidate.Series
		out.Summary = candidate.Summary
		out.Writer = candidate.Writer
		out.Penciller = candidate.Penciller
		out.Publisher = candidate.Publisher
		out.Genre = candidate.Genre
		out.Tags = candidate.Tags
		out.Web = candidate.Web
		out.LanguageISO = candidate.LanguageISO
		out.Manga = candidate.Manga
		out.AgeRating = candidate.AgeRating
		out.Count = clonePtr(candidate.Count)
		return out

	case DeriveFromFilename:
		out := existing.Clone()
		out.Title = candidate.Title
		out.Translator = candidate.Translator
		out.Number = clonePtr(candidate.Number)
		out.Volume = clonePtr(candidate.Volume)
		return out

	case VolumeOnly:
		out := existing.Clone()
		out.Volume = clonePtr(candidate.Volume)
		return out
	}

	// Unknown values behave like ReplaceAll; ParsePolicy never produces one.
	return candidate.Clone()
}

// MarshalText implements encoding.TextMarshaler.
func (p Policy) MarshalText() ([]byte, error) { return []byte(p.String()), nil }

// UnmarshalText implements encoding.TextUnmarshaler.
func (p *Policy) UnmarshalText(b []byte) error {
	v, err := ParsePolicy(string(b))
	if err != nil {
		return err
	}
	*p = v
	return nil
}
