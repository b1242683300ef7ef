package classify

import "testing"

func TestClassify(t *testing.T) {
	tests := []struct {
		name     string
		reason   string
		expected Category
	}{
		{
			name:     "official leave",
			reason:   "official leave",
			expected: CategoryOfficial,
		},
		{
			name:     "official uppercase",
			reason:   "OFFICIAL training offsite",
			expected: CategoryOfficial,
		},
		{
			name:     "family emergency",
			reason:   "had a family emergency",
			expected: CategoryEmergency,
		},
		{
			name:     "personal work",
			reason:   "had some personal errands",
			expected: CategoryPersonal,
		},
		{
			name:     "slept in the office",
			reason:   "I slept in the office",
			expected: CategoryShady,
		},
		{
			name:     "no keyword",
			reason:   "tired",
			expected: CategoryNotGenuine,
		},
		{
			name:     "empty reason",
			reason:   "",
			expected: CategoryNotGenuine,
		},
		{
			// Rule order: "official" is checked before "emergency".
			name:     "official beats emergency",
			reason:   "official emergency drill",
			expected: CategoryOfficial,
		},
		{
			// "emergency in office" also matches the shady phrase list,
			// but the emergency rule runs first.
			name:     "emergency beats shady phrase",
			reason:   "emergency in office",
			expected: CategoryEmergency,
		},
		{
			name:     "shady phrase mid sentence",
			reason:   "I basically Slept In The Office all week",
			expected: CategoryShady,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Classify(tt.reason); got != tt.expected {
				t.Errorf("Classify(%q) = %s, want %s", tt.reason, got, tt.expected)
			}
		})
	}
}

func TestBucketFor(t *testing.T) {
	tests := []struct {
		category Category
		expected Bucket
	}{
		{CategoryOfficial, BucketApproved},
		{CategoryEmergency, BucketApproved},
		{CategoryPersonal, BucketApproved},
		{CategoryShady, BucketShady},
		{CategoryNotGenuine, BucketNotGenuine},
		{CategoryUnknown, BucketNotGenuine},
		{CategoryError, BucketNotGenuine},
	}

	for _, tt := range tests {
		t.Run(string(tt.category), func(t *testing.T) {
			if got := BucketFor(tt.category); got != tt.expected {
				t.Errorf("BucketFor(%s) = %s, want %s", tt.category, got, tt.expected)
			}
		})
	}
}

func TestParse(t *testing.T) {
	tests := []struct {
		in       string
		expected Category
	}{
		{"Official", CategoryOfficial},
		{"  emergency ", CategoryEmergency},
		{"Personal", CategoryPersonal},
		{"Due to Some Personal Work", CategoryPersonal},
		{"SHADY", CategoryShady},
		{"Not Genuine", CategoryNotGenuine},
		{"something else entirely", CategoryUnknown},
		{"", CategoryUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			if got := Parse(tt.in); got != tt.expected {
				t.Errorf("Parse(%q) = %s, want %s", tt.in, got, tt.expected)
			}
		})
	}
}
