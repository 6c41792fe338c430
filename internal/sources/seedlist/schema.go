package seedlist

// File is the top-level structure of the seed file.
//
//	whitelist:
//	  - url: https://intranet.example.com
//	    details: company portal
//	blacklist:
//	  - url: http://paypa1-login.example/verify
//	    threat_type: phishing
//	    confidence: 95
type File struct {
	Whitelist []Entry `yaml:"whitelist"`
	Blacklist []Entry `yaml:"blacklist"`
}

// Entry is one seeded URL.
type Entry struct {
	URL        string `yaml:"url"`
	ThreatType string `yaml:"threat_type,omitempty"`
	Confidence *int   `yaml:"confidence,omitempty"`
	Details    string `yaml:"details,omitempty"`
}
