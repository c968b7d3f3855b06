package templates

import (
	"testing"

	"github.com/stretchr/testify/require"

	"resumeforge/internal/resume"
)

func TestCatalog(t *testing.T) {
	list := Catalog()
	ids := make([]string, 0, len(list))
	for _, tpl := range list {
		ids = append(ids, tpl.ID)
		require.NotEmpty(t, tpl.Name)
		_, err := tpl.SourceText()
		require.NoError(t, err, tpl.ID)
	}
	require.Equal(t, []string{"modern", "modern-compact", "classic", "classic-academic"}, ids)

	_, ok := Get("nope")
	require.False(t, ok)
	modern, ok := Get("modern")
	require.True(t, ok)
	require.True(t, modern.SupportsIcons)
}

func TestExampleDocuments(t *testing.T) {
	for _, tpl := range Catalog() {
		doc, err := tpl.ExampleDocument()
		require.NoError(t, err, tpl.ID)
		require.NotEmpty(t, doc.Contact.Name, tpl.ID)
		require.NotEmpty(t, doc.Sections, tpl.ID)
		for _, s := range doc.Sections {
			require.NotEmpty(t, s.Type, "%s/%s", tpl.ID, s.Name)
		}
		// 示例引用的图标必须都在内置图标中。
		for _, name := range resume.ReferencedIcons(doc.Sections) {
			_, ok := DefaultIcon(name)
			require.True(t, ok, "%s references %s", tpl.ID, name)
		}
	}
}

func TestBaseContactIconsAreBundled(t *testing.T) {
	for _, name := range resume.BaseContactIcons() {
		data, ok := DefaultIcon(name)
		require.True(t, ok, name)
		require.Equal(t, "\x89PNG", string(data[:4]))
	}
	require.Contains(t, DefaultIconNames(), "go.png")

	_, ok := DefaultIcon("../catalog.yaml")
	require.False(t, ok)
}

func TestResolve_FallsBackByPrefix(t *testing.T) {
	tpl, ok := Resolve("classic-legacy")
	require.True(t, ok)
	require.Equal(t, "classic", tpl.ID)

	tpl, ok = Resolve("something-else")
	require.True(t, ok)
	require.Equal(t, "modern", tpl.ID)

	tpl, ok = Resolve("modern-compact")
	require.True(t, ok)
	require.Equal(t, "modern-compact", tpl.ID)
}
