package resume

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestColumnCount(t *testing.T) {
	require.Equal(t, 1, ColumnCount(0, 3, 4))
	require.Equal(t, 1, ColumnCount(3, 3, 4))
	require.Equal(t, 1, ColumnCount(5, 3, 4))
	require.Equal(t, 2, ColumnCount(6, 3, 4))
	require.Equal(t, 3, ColumnCount(9, 3, 4))
	require.Equal(t, 4, ColumnCount(40, 3, 4))
	require.Equal(t, 2, ColumnCount(40, 3, 2))
}

func TestSplitColumns(t *testing.T) {
	items := []any{1, 2, 3, 4, 5, 6, 7}
	cols := SplitColumns(items, 3)
	require.Len(t, cols, 3)
	require.Equal(t, []any{1, 2, 3}, cols[0])
	require.Equal(t, []any{7}, cols[2])
}

func TestReferencedIcons(t *testing.T) {
	sections := []Section{
		{Name: "Skills", Type: TypeIconList, Content: []any{
			map[string]any{"name": "Go", "icon": "go.png"},
			map[string]any{"name": "K8s", "icon": "icons/k8s.png"},
		}},
		{Name: "Experience", Type: TypeExperience, Content: []any{
			map[string]any{"company": "Acme", "icon": "company_acme.png", "items": []any{
				map[string]any{"icon": "go.png"},
			}},
		}},
		{Name: "Summary", Type: TypeText, Content: "icon: not-a-key.png"},
	}
	require.Equal(t, []string{"company_acme.png", "go.png", "k8s.png"}, ReferencedIcons(sections))
}

func TestDecodeDocument_ValidatesAndNormalizes(t *testing.T) {
	doc, err := DecodeDocument(
		map[string]any{"name": "Jane", "linkedin": "jane-doe"},
		[]any{map[string]any{"name": "Experience", "content": []any{}}},
	)
	require.NoError(t, err)
	require.Equal(t, "Jane", doc.Contact.Name)
	require.Len(t, doc.Contact.SocialLinks, 1)
	require.Equal(t, TypeExperience, doc.Sections[0].Type)
}

func TestDecodeDocument_EmptyListsMatchStoredForm(t *testing.T) {
	decoded, err := DecodeDocument(map[string]any{"name": "Jane"}, nil)
	require.NoError(t, err)
	require.NotNil(t, decoded.Contact.SocialLinks)
	require.NotNil(t, decoded.Sections)

	stored, err := LoadStored([]byte(`{"name":"Jane"}`), nil)
	require.NoError(t, err)
	require.Equal(t, stored, decoded)
}

func TestDecodeDocument_RejectsUnknownSectionType(t *testing.T) {
	_, err := DecodeDocument(nil, []any{map[string]any{"name": "X", "type": "carousel"}})
	var schemaErr *SchemaError
	require.ErrorAs(t, err, &schemaErr)
}

func TestDecodeDocument_RejectsNonObjectSection(t *testing.T) {
	_, err := DecodeDocument(nil, []any{"just a string"})
	require.Error(t, err)
}

func TestSkeleton(t *testing.T) {
	doc := Document{
		Contact: Contact{Name: "Jane"},
		Sections: []Section{
			{Name: "Summary", Type: TypeText, Content: "hello"},
			{Name: "Skills", Type: TypeInlineList, Content: []any{"Go"}},
		},
	}
	sk := Skeleton(doc)
	require.Empty(t, sk.Contact.Name)
	require.Equal(t, "", sk.Sections[0].Content)
	require.Equal(t, []any{}, sk.Sections[1].Content)
	require.Equal(t, TypeInlineList, sk.Sections[1].Type)
}
