package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TomySpagnoletti/trouve-ton-psy/internal/enrich"
	"github.com/TomySpagnoletti/trouve-ton-psy/internal/model"
)

func TestRootCommand_HasSubcommands(t *testing.T) {
	names := make(map[string]bool)
	for _, c := range rootCmd.Commands() {
		names[c.Name()] = true
	}
	for _, name := range []string{"cities", "psychologists", "search"} {
		assert.True(t, names[name], "expected subcommand %q not found", name)
	}
}

func TestRootCommand_Metadata(t *testing.T) {
	assert.Equal(t, "psyctl", rootCmd.Use)
	assert.NotEmpty(t, rootCmd.Short)
	assert.NotEmpty(t, rootCmd.Long)
}

func TestCitiesCommand_HasSubcommands(t *testing.T) {
	names := make(map[string]bool)
	for _, c := range citiesCmd.Commands() {
		names[c.Name()] = true
	}
	for _, name := range []string{"migrate", "populate", "missing", "missing-insee", "add", "verify"} {
		assert.True(t, names[name], "expected subcommand %q not found", name)
	}
}

func TestCitiesVerify_Flags(t *testing.T) {
	for _, name := range []string{"reset", "retry-failures", "yes"} {
		flag := citiesVerifyCmd.Flags().Lookup(name)
		require.NotNil(t, flag, "verify should have --%s", name)
		assert.Equal(t, "false", flag.DefValue)
	}
}

func TestCitiesAdd_Flags(t *testing.T) {
	flag := citiesAddCmd.Flags().Lookup("by")
	require.NotNil(t, flag)
	assert.Equal(t, "postal", flag.DefValue)
	require.NotNil(t, citiesAddCmd.Flags().Lookup("file"))
}

func TestPsychologistsPopulate_Flags(t *testing.T) {
	flag := psychologistsPopulateCmd.Flags().Lookup("load-only")
	require.NotNil(t, flag)
	assert.Equal(t, "false", flag.DefValue)
}

func TestSearch_Flags(t *testing.T) {
	flag := searchCmd.Flags().Lookup("limit")
	require.NotNil(t, flag)
	assert.Equal(t, "50", flag.DefValue)
	require.NotNil(t, searchCmd.Flags().Lookup("public"))
	require.NotNil(t, searchCmd.Flags().Lookup("visio"))
}

func TestCatalogKeys(t *testing.T) {
	cities := []model.City{
		{INSEECode: "75056", PostalCodes: []string{"75001", "75002"}},
		{INSEECode: "17300", PostalCodes: []string{"17000"}},
	}
	assert.Equal(t, []string{"75001", "75002", "17000"}, catalogKeys(cities, enrich.ByPostalCode))
	assert.Equal(t, []string{"75056", "17300"}, catalogKeys(cities, enrich.ByINSEE))
}

func TestNearbyRow(t *testing.T) {
	r := nearbyRow(model.Nearby{
		Psychologist: model.Psychologist{
			FirstName:        "Ada",
			LastName:         "Martin",
			Address:          "1 rue du Port",
			Audiences:        []string{model.AudienceAdults, model.AudienceChildren},
			Teleconsultation: true,
		},
		DistanceKm: 3.14159,
	})
	assert.Equal(t, "3.1", r[0])
	assert.Equal(t, "Ada Martin", r[1])
	assert.Equal(t, "Adultes, Enfants", r[3])
	assert.Equal(t, "yes", r[4])
}
