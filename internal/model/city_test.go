package model

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ptr[T any](v T) *T { return &v }

func TestCityUpdateFields(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		update CityUpdate
		want   []Field
	}{
		{"empty", CityUpdate{}, nil},
		{"name only", CityUpdate{Name: ptr("Brest")}, []Field{FieldName}},
		{
			"postal and center",
			CityUpdate{PostalCodes: []string{"29200"}, Center: &Point{Lat: 48.39, Lon: -4.49}},
			[]Field{FieldPostalCodes, FieldCenter},
		},
		{
			"all fields in report order",
			CityUpdate{
				Center:         &Point{},
				RegionName:     ptr("Bretagne"),
				Name:           ptr("Brest"),
				PostalCodes:    []string{"29200"},
				DepartmentName: ptr("Finistère"),
				DepartmentCode: ptr("29"),
			},
			Fields,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, tt.update.Fields())
			assert.Equal(t, len(tt.want) == 0, tt.update.IsEmpty())
		})
	}
}

func TestCityUpdatePayloadKeys(t *testing.T) {
	t.Parallel()

	u := CityUpdate{
		Name:        ptr("La Rochelle"),
		PostalCodes: []string{"17000"},
		Center:      &Point{Lat: 46.16, Lon: -1.15},
	}
	raw, err := json.Marshal(u)
	require.NoError(t, err)

	var keys map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(raw, &keys))
	assert.Len(t, keys, 3)
	assert.Contains(t, keys, string(FieldName))
	assert.Contains(t, keys, string(FieldPostalCodes))
	assert.Contains(t, keys, string(FieldCenter))
}
