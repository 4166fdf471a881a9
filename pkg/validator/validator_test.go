package validator

import (
	"testing"

	"github.com/genobridge/genobridge/pkg/broker"
	"github.com/genobridge/genobridge/pkg/registry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func descriptor() *registry.Descriptor {
	return &registry.Descriptor{
		Name: "translate_dna",
		Schema: registry.Schema{
			Properties: map[string]registry.Property{
				"dna":   {Type: registry.TypeString},
				"frame": {Type: registry.TypeString, Enum: []string{"0", "1", "2"}, Default: "0"},
				"extra": {Type: registry.TypeArray},
			},
			Required: []string{"dna"},
		},
	}
}

func TestValidate_MissingRequired(t *testing.T) {
	_, err := Validate(descriptor(), map[string]any{})
	require.Error(t, err)
	assert.Equal(t, broker.InvalidArguments, broker.KindOf(err))
	assert.Contains(t, err.Error(), "dna")
}

func TestValidate_FillsDefault(t *testing.T) {
	out, err := Validate(descriptor(), map[string]any{"dna": "ATG"})
	require.NoError(t, err)
	assert.Equal(t, "0", out["frame"])
}

func TestValidate_TypeMismatch(t *testing.T) {
	_, err := Validate(descriptor(), map[string]any{"dna": 42})
	require.Error(t, err)
	assert.Equal(t, broker.InvalidArguments, broker.KindOf(err))
}

func TestValidate_EnumEnforced(t *testing.T) {
	_, err := Validate(descriptor(), map[string]any{"dna": "ATG", "frame": "9"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "frame")
}

func TestValidate_UnknownPropertyPassesThrough(t *testing.T) {
	out, err := Validate(descriptor(), map[string]any{"dna": "ATG", "surprise": true})
	require.NoError(t, err)
	assert.Equal(t, true, out["surprise"])
}

func TestValidate_ShallowArrayTypeCheck(t *testing.T) {
	out, err := Validate(descriptor(), map[string]any{"dna": "ATG", "extra": []any{1, "two", true}})
	require.NoError(t, err)
	assert.Equal(t, []any{1, "two", true}, out["extra"])
}

func TestValidate_ReportsEveryError(t *testing.T) {
	_, err := Validate(descriptor(), map[string]any{"frame": "9"})
	require.Error(t, err)

	var be *broker.Error
	require.True(t, broker.As(err, &be))

	details, ok := be.Details.([]FieldError)
	require.True(t, ok)
	assert.Len(t, details, 2)
	assert.Equal(t, "dna", details[0].Field)
	assert.Equal(t, "frame", details[1].Field)
}
