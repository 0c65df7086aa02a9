package browser

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/subterminator/core/pkg/taxonomy"
)

func TestClickAtCoordinatesRejectsNegativeX(t *testing.T) {
	d := &PlaywrightDriver{} // validation short-circuits before touching the page
	err := d.ClickAtCoordinates(context.Background(), -1, 0)
	assert.True(t, taxonomy.Is(err, taxonomy.KindInputValidation))
}

func TestClickAtCoordinatesRejectsNegativeY(t *testing.T) {
	d := &PlaywrightDriver{}
	err := d.ClickAtCoordinates(context.Background(), 0, -1)
	assert.True(t, taxonomy.Is(err, taxonomy.KindInputValidation))
}
