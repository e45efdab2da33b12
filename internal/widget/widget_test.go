package widget

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func valid() Config {
	c := Default()
	c.PhoneNumber = "+44 20 7183 8750"
	c.BrandName = "Acme"
	c.Greeting = "Hello there!"
	return c
}

func TestValidate(t *testing.T) {
	require.NoError(t, valid().Validate())

	c := valid()
	c.PhoneNumber = "123"
	c.Color = "green"
	c.Position = "top"
	c.ButtonText = " "
	err := c.Validate()

	var fe FieldErrors
	require.ErrorAs(t, err, &fe)
	assert.Len(t, fe, 4)
	assert.Contains(t, fe, "phone_number")
	assert.Contains(t, fe, "color")
	assert.Contains(t, fe, "position")
	assert.Contains(t, fe, "button_text")
	assert.Contains(t, err.Error(), "color: must be a #rrggbb color")
}

func TestLink(t *testing.T) {
	c := valid()
	assert.Equal(t, "https://wa.me/442071838750?text=Hello%20there%21", c.Link())

	c.Greeting = ""
	assert.Equal(t, "https://wa.me/442071838750", c.Link())
}

func TestSanitized(t *testing.T) {
	c := valid()
	c.Greeting = `<b>Hi</b> <script>alert(1)</script>Tom & Jerry`
	c.Color = "#25D366"

	clean := c.Sanitized()
	assert.Equal(t, "Hi Tom & Jerry", clean.Greeting)
	assert.Equal(t, "+442071838750", clean.PhoneNumber)
	assert.Equal(t, "#25d366", clean.Color)
}

func TestSnippet(t *testing.T) {
	c := valid()
	c.BrandName = `Acme <img src=x onerror=alert(1)>`
	c.Position = PositionLeft

	out, err := c.Snippet()
	require.NoError(t, err)

	assert.Contains(t, out, `href="https://wa.me/442071838750?text=Hello%20there%21"`)
	assert.Contains(t, out, "left:20px")
	assert.Contains(t, out, "#25d366")
	assert.Contains(t, out, ">Chat with us</a>")
	assert.NotContains(t, out, "<img")
	assert.NotContains(t, out, "onerror")

	c.Color = "red"
	_, err = c.Snippet()
	assert.Error(t, err)
}

func TestModelRoundTrip(t *testing.T) {
	c := valid()
	m := c.Model("acc-1")
	assert.Equal(t, "acc-1", m.AccountID)
	assert.Equal(t, c, FromModel(m))
}
