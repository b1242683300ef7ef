package classify

import "strings"

// Category is the label assigned to an employee's stated reason for
// working below the weekly threshold.
type Category string

const (
	CategoryOfficial   Category = "Official"
	CategoryEmergency  Category = "Emergency"
	CategoryPersonal   Category = "Personal"
	CategoryShady      Category = "Shady"
	CategoryNotGenuine Category = "Not Genuine"

	// Assigned by the generative composer when the service response
	// cannot be parsed or the call itself fails.
	CategoryUnknown Category = "Unknown"
	CategoryError   Category = "Error"
)

// Bucket is one of the three outcome groups that partition flagged records.
type Bucket string

const (
	BucketApproved   Bucket = "approved"
	BucketShady      Bucket = "shady"
	BucketNotGenuine Bucket = "not_genuine"
)

// keywordRule maps reason substrings to a category. Order matters:
// the first matching rule wins, so a reason containing "emergency" is
// always Emergency even when it also matches a Shady phrase like
// "emergency in office".
type keywordRule struct {
	phrases  []string
	category Category
}

var keywordRules = []keywordRule{
	{[]string{"official"}, CategoryOfficial},
	{[]string{"emergency"}, CategoryEmergency},
	{[]string{"personal"}, CategoryPersonal},
	{[]string{"slept in the office", "emergency in office"}, CategoryShady},
}

// Classify maps a free-text reason to a category using case-insensitive
// substring rules. Pure, no I/O.
func Classify(reason string) Category {
	lower := strings.ToLower(reason)
	for _, rule := range keywordRules {
		for _, phrase := range rule.phrases {
			if strings.Contains(lower, phrase) {
				return rule.category
			}
		}
	}
	return CategoryNotGenuine
}

// Approved reports whether a category requires no management response.
func Approved(c Category) bool {
	switch c {
	case CategoryOfficial, CategoryEmergency, CategoryPersonal:
		return true
	}
	return false
}

// BucketFor maps a category to its outcome bucket. Anything that is not
// approved or shady (including Unknown and Error) lands in not-genuine.
func BucketFor(c Category) Bucket {
	switch {
	case Approved(c):
		return BucketApproved
	case c == CategoryShady:
		return BucketShady
	default:
		return BucketNotGenuine
	}
}

// Parse normalizes a category string returned by the text-generation
// service. Unrecognized labels map to Unknown.
func Parse(s string) Category {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "official":
		return CategoryOfficial
	case "emergency":
		return CategoryEmergency
	case "personal", "due to some personal work":
		return CategoryPersonal
	case "shady":
		return CategoryShady
	case "not genuine", "not-genuine":
		return CategoryNotGenuine
	case "error":
		return CategoryError
	default:
		return CategoryUnknown
	}
}
