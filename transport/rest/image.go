package rest

import (
	"errors"
	"fmt"
	"io"

	"github.com/gofiber/fiber/v2"
	"github.com/zipcard/zipcard"
)

// UploadBodyLimit is the fiber BodyLimit for the api app. Uploads arrive as
// multipart bodies, so the limit leaves headroom above the raw image cap for
// the multipart framing; an oversized image still reaches the store and gets
// the typed 413 instead of fiber's generic one.
const UploadBodyLimit = zipcard.MaxImageBytes + 1<<20

type ImageController struct {
	Store zipcard.ImageStore
}

func (c *ImageController) InstallTo(requestAuthorizer fiber.Handler, app *fiber.App) {
	app.Post("/images", combineHandlers(requestAuthorizer, c.serveUpload))
	app.Get("/images/:image_id", c.serveImage)
	app.Delete("/images/:image_id", combineHandlers(requestAuthorizer, c.serveDelete))
	app.Post("/images/sweep", combineHandlers(requestAuthorizer, c.serveSweep))
}

func (c *ImageController) serveUpload(ctx *fiber.Ctx) error {
	user, ok := ctx.Locals(userLocalsKey).(zipcard.User)
	if !ok {
		return fiber.ErrUnauthorized
	}

	header, err := ctx.FormFile("file")
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "missing file")
	}
	file, err := header.Open()
	if err != nil {
		return fmt.Errorf("open multipart file: %w", err)
	}
	defer file.Close()

	bytes := make([]byte, header.Size)
	if _, err := io.ReadFull(file, bytes); err != nil {
		return fmt.Errorf("read multipart file: %w", err)
	}

	id, err := c.Store.Upload(ctx.Context(), zipcard.ImageUpload{
		OwnerProfileId: user.Id,
		FileName:       header.Filename,
		MimeType:       header.Header.Get(fiber.HeaderContentType),
		Bytes:          bytes,
	})
	if err != nil {
		switch {
		case errors.Is(err, zipcard.ErrUnsupportedType):
			return fiber.NewError(fiber.StatusUnsupportedMediaType, "only jpeg and png images are supported")
		case errors.Is(err, zipcard.ErrImageTooLarge):
			return fiber.NewError(fiber.StatusRequestEntityTooLarge, "image exceeds the 10 MB limit")
		default:
			return fmt.Errorf("image upload: %w", err)
		}
	}

	requestLog(ctx).
		WithField("image_id", id).
		WithField("byte_size", len(bytes)).
		Infoln("Image uploaded.")
	return ctx.Status(fiber.StatusCreated).JSON(map[string]string{"id": id})
}

// serveImage returns raw stored bytes. Missing and corrupt records are both
// a plain 404; card rendering falls back through the resolver instead.
func (c *ImageController) serveImage(ctx *fiber.Ctx) error {
	id := ctx.Params("image_id")
	if id == "" {
		return fiber.NewError(fiber.StatusBadRequest, "no image id")
	}

	image, err := c.Store.Fetch(ctx.Context(), id)
	if err != nil {
		return fmt.Errorf("image fetch: %w", err)
	}
	if image == nil {
		return fiber.NewError(fiber.StatusNotFound, "image not found")
	}

	ctx.Set(fiber.HeaderContentType, image.MimeType)
	return ctx.Send(image.Bytes)
}

func (c *ImageController) serveDelete(ctx *fiber.Ctx) error {
	id := ctx.Params("image_id")
	if id == "" {
		return fiber.NewError(fiber.StatusBadRequest, "no image id")
	}

	deleted, err := c.Store.Remove(ctx.Context(), id)
	if err != nil {
		return fmt.Errorf("image remove: %w", err)
	}
	return ctx.JSON(map[string]bool{"deleted": deleted})
}

func (c *ImageController) serveSweep(ctx *fiber.Ctx) error {
	count, err := c.Store.SweepCorrupted(ctx.Context())
	if err != nil {
		return fmt.Errorf("sweep corrupted images: %w", err)
	}
	requestLog(ctx).WithField("count", count).Infoln("Corrupt images swept.")
	return ctx.JSON(map[string]int{"deleted": count})
}
