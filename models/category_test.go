package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestParseCategory(t *testing.T) {
	assert.Equal(t, CategoryInvoice, ParseCategory(" Invoice "))
	assert.Equal(t, CategoryTax, ParseCategory("tax"))
	assert.Equal(t, CategoryOther, ParseCategory("recipes"))
	assert.Equal(t, CategoryOther, ParseCategory(""))
}

func TestCategoryMappingIsTotal(t *testing.T) {
	seen := map[string]bool{}
	for _, c := range Categories() {
		assert.True(t, c.Valid())
		assert.NotEmpty(t, c.Icon())
		assert.NotEmpty(t, c.Color())
		seen[c.Icon()] = true
	}
	assert.Len(t, seen, len(Categories()))

	unknown := Category("garden")
	assert.False(t, unknown.Valid())
	assert.Equal(t, CategoryOther.Icon(), unknown.Icon())
	assert.Equal(t, CategoryOther.Color(), unknown.Color())
}

func TestReminderPreferenceVisible(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	var none *ReminderPreference
	assert.True(t, none.Visible(now))

	p := &ReminderPreference{DismissedUntil: now.Add(24 * time.Hour)}
	assert.False(t, p.Visible(now))
	assert.True(t, p.Visible(now.Add(24*time.Hour)))
}
