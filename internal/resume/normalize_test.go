package resume

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNormalizeSections_InfersExperienceAndEducation(t *testing.T) {
	sections := []Section{
		{Name: "Experience", Content: []any{}},
		{Name: " EDUCATION ", Content: []any{}},
		{Name: "Skills", Content: []any{}},
		{Name: "experience", Type: TypeBulletedList, Content: []any{}},
	}
	NormalizeSections(sections)

	require.Equal(t, TypeExperience, sections[0].Type)
	require.Equal(t, TypeEducation, sections[1].Type)
	require.Empty(t, sections[2].Type)
	require.Equal(t, TypeBulletedList, sections[3].Type)
}

func TestMigrateLegacyLinkedIn(t *testing.T) {
	c := Contact{Name: "Jane", LinkedIn: "https://www.linkedin.com/in/jane-doe/"}
	MigrateLegacyLinkedIn(&c)

	require.Empty(t, c.LinkedIn)
	require.Len(t, c.SocialLinks, 1)
	require.Equal(t, "linkedin", c.SocialLinks[0].Platform)
	require.Equal(t, "jane-doe", c.SocialLinks[0].Handle)
	require.Equal(t, "https://www.linkedin.com/in/jane-doe/", c.SocialLinks[0].URL)

	MigrateLegacyLinkedIn(&c)
	require.Len(t, c.SocialLinks, 1, "migration must be idempotent")
}

func TestMigrateLegacyLinkedIn_BareHandle(t *testing.T) {
	c := Contact{LinkedIn: "@jdoe"}
	MigrateLegacyLinkedIn(&c)
	require.Equal(t, "jdoe", c.SocialLinks[0].Handle)
	require.Equal(t, "https://www.linkedin.com/in/jdoe", c.SocialLinks[0].URL)
}

func TestMigrateLegacyLinkedIn_ExistingLinkWins(t *testing.T) {
	c := Contact{
		LinkedIn:    "old-handle",
		SocialLinks: []SocialLink{{Platform: "LinkedIn", URL: "https://linkedin.com/in/new"}},
	}
	MigrateLegacyLinkedIn(&c)
	require.Len(t, c.SocialLinks, 1)
	require.Equal(t, "https://linkedin.com/in/new", c.SocialLinks[0].URL)
	require.Empty(t, c.LinkedIn)
}

func TestLinkedInDisplay(t *testing.T) {
	cases := []struct {
		handle, name, want string
	}{
		{"jane-doe", "", "Jane Doe"},
		{"janedoe", "", "Janedoe"},
		{"jane-middle-doe", "Jane Doe", "Jane Doe"},
		{"jane-12345", "Jane", "Jane"},
		{"janedoe-a1b2c3d4e5", "Jane D", "Jane D"},
		{"janedoe-abcdefghij", "", "Janedoe Abcdefghij"},
		{"averyveryveryveryveryveryveryveryveryverylonghandle-x", "", "LinkedIn Profile"},
		{"", "", "LinkedIn Profile"},
	}
	for _, tc := range cases {
		require.Equal(t, tc.want, LinkedInDisplay(tc.handle, tc.name), tc.handle)
	}
}

func TestApplyLinkedInDisplay_KeepsExplicitText(t *testing.T) {
	c := Contact{
		Name: "Jane",
		SocialLinks: []SocialLink{
			{Platform: "linkedin", URL: "https://linkedin.com/in/jane-doe"},
			{Platform: "linkedin", URL: "https://linkedin.com/in/x", DisplayText: "Custom"},
			{Platform: "github", URL: "https://github.com/jane"},
		},
	}
	ApplyLinkedInDisplay(&c)
	require.Equal(t, "Jane Doe", c.SocialLinks[0].DisplayText)
	require.Equal(t, "Custom", c.SocialLinks[1].DisplayText)
	require.Empty(t, c.SocialLinks[2].DisplayText)
}

func TestCompatLinkedIn(t *testing.T) {
	c := Contact{SocialLinks: []SocialLink{{Platform: "linkedin", URL: "https://linkedin.com/in/a"}}}
	require.Equal(t, "https://linkedin.com/in/a", CompatLinkedIn(c))
	require.Empty(t, CompatLinkedIn(Contact{}))
}
