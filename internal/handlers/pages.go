package handlers

import (
	_ "embed"

	"github.com/gofiber/fiber/v3"

	"github.com/emorales/contabridge/internal/utils"
)

//go:embed index.html
var indexHTML []byte

// Index serves the upload form.
func Index(c fiber.Ctx) error {
	c.Set(fiber.HeaderContentType, fiber.MIMETextHTMLCharsetUTF8)
	return c.Send(indexHTML)
}

// NotFound answers unmatched routes with the standard error shape.
func NotFound(c fiber.Ctx) error {
	return utils.NewNotFoundError("route")
}
