package rest

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"

	"github.com/gofiber/fiber/v2"
	"github.com/zipcard/zipcard"
	"github.com/zipcard/zipcard/autosave"
	"github.com/zipcard/zipcard/qr"
	"github.com/zipcard/zipcard/resolver"
)

type ProfileController struct {
	Store        zipcard.ProfileStore
	Resolver     *resolver.Resolver
	PublicOrigin string

	// one autosave coordinator per editing user, created lazily and torn
	// down when the editor closes
	editorsMu sync.Mutex
	editors   map[zipcard.UserId]*autosave.Coordinator
}

func (c *ProfileController) InstallTo(requestAuthorizer fiber.Handler, app *fiber.App) {
	app.Get("/profile", combineHandlers(requestAuthorizer, c.serveOwnProfile))
	app.Put("/profile", combineHandlers(requestAuthorizer, c.serveSaveNow))
	app.Patch("/profile", combineHandlers(requestAuthorizer, c.serveAutosave))
	app.Delete("/profile/editor", combineHandlers(requestAuthorizer, c.serveCloseEditor))
	app.Get("/profile/qr", combineHandlers(requestAuthorizer, c.serveShareQr))
}

// InstallPublicTo mounts the public card page on the outer, unauthenticated
// server: <origin>/u/<username> is what the share QR resolves to.
func (c *ProfileController) InstallPublicTo(app *fiber.App) {
	app.Get("/u/:username", c.servePublicProfile)
}

func (c *ProfileController) editor(userId zipcard.UserId) *autosave.Coordinator {
	c.editorsMu.Lock()
	defer c.editorsMu.Unlock()
	if c.editors == nil {
		c.editors = make(map[zipcard.UserId]*autosave.Coordinator)
	}
	coordinator, ok := c.editors[userId]
	if !ok {
		coordinator = autosave.New(c.Store.Save, autosave.WithDelay(autosave.EditorDelay))
		c.editors[userId] = coordinator
	}
	return coordinator
}

// CloseEditors cancels every pending autosave. Called on shutdown.
func (c *ProfileController) CloseEditors() {
	c.editorsMu.Lock()
	defer c.editorsMu.Unlock()
	for userId, coordinator := range c.editors {
		coordinator.Close()
		delete(c.editors, userId)
	}
}

func (c *ProfileController) serveOwnProfile(ctx *fiber.Ctx) error {
	user, ok := ctx.Locals(userLocalsKey).(zipcard.User)
	if !ok {
		return fiber.ErrUnauthorized
	}

	doc, err := c.Store.ByUserId(ctx.Context(), user.Id)
	if err != nil {
		if errors.Is(err, zipcard.ErrProfileNotFound) {
			doc = zipcard.NewProfileDocument(user.Id, user.Username)
		} else {
			return fmt.Errorf("get profile by user id: %w", err)
		}
	}

	// opening the editor: the loaded document is the saved baseline
	c.editor(user.Id).Seed(doc)
	return ctx.JSON(doc)
}

func (c *ProfileController) parseDocument(ctx *fiber.Ctx, user zipcard.User) (zipcard.ProfileDocument, error) {
	doc := zipcard.NewProfileDocument(user.Id, user.Username)
	if err := ctx.BodyParser(&doc); err != nil {
		requestLog(ctx).WithError(err).Infoln("Invalid body.")
		return zipcard.ProfileDocument{}, fiber.NewError(fiber.StatusBadRequest, "invalid body")
	}
	// identity comes from the session, never from the payload
	doc.UserId = user.Id
	doc.Username = user.Username
	return doc, nil
}

// serveAutosave queues the mutated document behind the debounce window.
// Persistence failure never blocks editing; the coordinator retries with
// the latest state on the next cycle.
func (c *ProfileController) serveAutosave(ctx *fiber.Ctx) error {
	user, ok := ctx.Locals(userLocalsKey).(zipcard.User)
	if !ok {
		return fiber.ErrUnauthorized
	}
	doc, err := c.parseDocument(ctx, user)
	if err != nil {
		return err
	}

	c.editor(user.Id).Observe(doc)
	return ctx.Status(fiber.StatusAccepted).JSON(map[string]bool{"queued": true})
}

// serveSaveNow is the manual save path: bypasses the debounce, persists
// immediately and moves the autosave baseline with it.
func (c *ProfileController) serveSaveNow(ctx *fiber.Ctx) error {
	user, ok := ctx.Locals(userLocalsKey).(zipcard.User)
	if !ok {
		return fiber.ErrUnauthorized
	}
	doc, err := c.parseDocument(ctx, user)
	if err != nil {
		return err
	}

	coordinator := c.editor(user.Id)
	coordinator.Observe(doc)
	if err := coordinator.Flush(ctx.Context()); err != nil {
		if errors.Is(err, zipcard.ErrStorageUnavailable) {
			return fiber.NewError(fiber.StatusServiceUnavailable, "could not complete save")
		}
		return fmt.Errorf("save profile: %w", err)
	}
	return ctx.JSON(map[string]bool{"saved": true})
}

func (c *ProfileController) serveCloseEditor(ctx *fiber.Ctx) error {
	user, ok := ctx.Locals(userLocalsKey).(zipcard.User)
	if !ok {
		return fiber.ErrUnauthorized
	}

	c.editorsMu.Lock()
	coordinator, ok := c.editors[user.Id]
	if ok {
		coordinator.Close()
		delete(c.editors, user.Id)
	}
	c.editorsMu.Unlock()
	return ctx.JSON(map[string]bool{"closed": ok})
}

func (c *ProfileController) servePublicProfile(ctx *fiber.Ctx) error {
	username := ctx.Params("username")
	if username == "" {
		return fiber.NewError(fiber.StatusBadRequest, "no username")
	}

	doc, err := c.Store.ByUsername(ctx.Context(), username)
	if err != nil {
		if errors.Is(err, zipcard.ErrProfileNotFound) {
			return fiber.NewError(fiber.StatusNotFound, "profile not found")
		}
		return fmt.Errorf("get profile by username: %w", err)
	}
	return ctx.JSON(c.publicView(ctx.Context(), doc))
}

type PublicWidget struct {
	Name   string               `json:"name"`
	Layout zipcard.WidgetLayout `json:"layout"`
	Photos []string             `json:"photos"`
}

type PublicProfile struct {
	Username        string               `json:"username"`
	FullName        string               `json:"fullName"`
	Title           string               `json:"title"`
	Bio             string               `json:"bio"`
	Phone           string               `json:"phone"`
	Location        string               `json:"location"`
	Website         string               `json:"website"`
	Socials         []zipcard.SocialLink `json:"socials"`
	Services        []zipcard.Service    `json:"services"`
	ProfileImageUrl string               `json:"profileImageUrl"`
	Photos          []string             `json:"photos"`
	Widgets         []PublicWidget       `json:"widgets"`
	Theme           zipcard.Theme        `json:"theme"`
	ShareUrl        string               `json:"shareUrl"`
}

func (c *ProfileController) publicView(ctx context.Context, doc zipcard.ProfileDocument) PublicProfile {
	view := PublicProfile{
		Username: doc.Username,
		FullName: doc.FullName,
		Title:    doc.Title,
		Bio:      doc.Bio,
		Phone:    doc.Phone,
		Location: doc.Location,
		Website:  doc.Website,
		Socials:  doc.Socials,
		Services: doc.Services,
		Theme:    doc.Theme,
		ShareUrl: qr.PublicProfileURL(c.PublicOrigin, doc.Username),
	}
	view.ProfileImageUrl = c.Resolver.Resolve(ctx, doc.ProfileImageId).URL
	view.Photos = make([]string, len(doc.PhotoIds))
	for i, result := range c.Resolver.ResolveAll(ctx, doc.PhotoIds) {
		view.Photos[i] = result.URL
	}
	view.Widgets = make([]PublicWidget, len(doc.PhotoWidgets))
	for i, widget := range doc.PhotoWidgets {
		photos := make([]string, len(widget.PhotoIds))
		for j, result := range c.Resolver.ResolveAll(ctx, widget.PhotoIds) {
			photos[j] = result.URL
		}
		view.Widgets[i] = PublicWidget{Name: widget.Name, Layout: widget.Layout, Photos: photos}
	}
	return view
}

func (c *ProfileController) serveShareQr(ctx *fiber.Ctx) error {
	user, ok := ctx.Locals(userLocalsKey).(zipcard.User)
	if !ok {
		return fiber.ErrUnauthorized
	}

	size := qr.DefaultSize
	if sizeStr := ctx.Query("size"); sizeStr != "" {
		parsed, err := strconv.Atoi(sizeStr)
		if err != nil || parsed < 64 || parsed > 2048 {
			return fiber.NewError(fiber.StatusBadRequest, "invalid size")
		}
		size = parsed
	}

	png, err := qr.SharePNG(c.PublicOrigin, user.Username, qr.Options{Size: size})
	if err != nil {
		return fmt.Errorf("share qr render: %w", err)
	}
	ctx.Set(fiber.HeaderContentType, "image/png")
	return ctx.Send(png)
}
