package rowan

import (
	"strings"
	"testing"

	"github.com/evergreen-ci/rowan/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type articleSchema struct {
	Headline string `bson:"headline,omitempty"`
	Title    string `bson:"title,omitempty"`
	Views    int    `bson:"views,omitempty"`
}

func TestDecodeRowFillsTaggedStruct(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)

	row := model.Row{
		ID: 1,
		Fields: model.Document{
			"headline": "hello",
			"views":    7,
			"ignored":  "no matching field",
		},
	}

	var article articleSchema
	require.NoError(DecodeRow(row, &article))

	assert.Equal("hello", article.Headline)
	assert.Equal(7, article.Views)
	assert.Zero(article.Title)
}

func TestPatchFromRendersSparseSet(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)

	patch, err := PatchFrom(articleSchema{Title: "hello"})
	require.NoError(err)
	assert.Equal(model.Document{"title": "hello"}, patch.Set)

	// zero fields are omitted, so a zero struct is a zero patch
	patch, err = PatchFrom(articleSchema{})
	require.NoError(err)
	assert.True(patch.IsZero())
}

func TestTypedTransformRunsAgainstDecodedRows(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)

	def := Definition{
		Name: "shout-headline",
		Transform: TypedTransform(func(article articleSchema) (model.Patch, error) {
			if article.Headline == "" {
				return model.Patch{}, nil
			}
			return model.Patch{
				Set:   model.Document{"title": strings.ToUpper(article.Headline)},
				Unset: []string{"headline"},
			}, nil
		}),
	}

	effective, err := Resolve([]Definition{def}, model.Row{
		ID:     1,
		Fields: model.Document{"headline": "hello", "views": 7},
	})
	require.NoError(err)

	assert.Equal("HELLO", effective.Fields["title"])
	assert.NotContains(effective.Fields, "headline")
	assert.Equal([]string{"shout-headline"}, effective.AppliedUpgrades)
}

func TestTypedTransformReportsDecodeFailures(t *testing.T) {
	assert := assert.New(t)

	transform := TypedTransform(func(articleSchema) (model.Patch, error) {
		t.Fatal("transform must not run when decoding fails")
		return model.Patch{}, nil
	})

	patch, err := transform(model.Row{
		ID:     "bad-row",
		Fields: model.Document{"views": "seven"},
	})
	assert.Error(err)
	assert.Contains(err.Error(), "bad-row")
	assert.True(patch.IsZero())
}
