package domain

type SocialLinks struct {
	Primary   string `json:"primary,omitempty"`
	LinkedIn  string `json:"linkedin,omitempty"`
	GitHub    string `json:"github,omitempty"`
	Portfolio string `json:"portfolio,omitempty"`
	Instagram string `json:"instagram,omitempty"`
}

// Student is a member profile persisted in the students collection.
type Student struct {
	UID              string       `json:"uid"`
	Name             string       `json:"name"`
	Email            string       `json:"email,omitempty"`
	PhotoURL         string       `json:"photoURL,omitempty"`
	Batch            string       `json:"batch,omitempty"`
	BatchYear        int          `json:"batchYear,omitempty"`
	StudentID        string       `json:"studentId,omitempty"`
	Bio              string       `json:"bio,omitempty"`
	Skills           []string     `json:"skills,omitempty"`
	HasLaptop        bool         `json:"hasLaptop,omitempty"`
	SocialLinks      *SocialLinks `json:"socialLinks,omitempty"`
	CreatedAt        string       `json:"createdAt,omitempty"`
	LastLogin        string       `json:"lastLogin,omitempty"`
	ProfileUpdatedAt string       `json:"profileUpdatedAt,omitempty"`
	LastUpdatedAt    string       `json:"lastUpdatedAt,omitempty"`
}

// XPData is the derived experience view of a member, computed from the XP
// awards of completed events. It is never stored on the student record.
type XPData struct {
	UID     string         `json:"uid"`
	TotalXP int            `json:"totalXp"`
	ByRole  map[string]int `json:"byRole"`
	Events  []string       `json:"events"`
}
