package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"io/ioutil"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/zipcard/zipcard"
	"github.com/zipcard/zipcard/inmem"
	"github.com/zipcard/zipcard/mock"
	"github.com/zipcard/zipcard/resolver"
)

const testFallback = "https://zipcard.app/img/placeholder.png"

func testAuthorizer(user zipcard.User) fiber.Handler {
	return func(ctx *fiber.Ctx) error {
		ctx.Locals(sessionLocalsKey, zipcard.Session{UserId: user.Id, Token: "t"})
		ctx.Locals(userLocalsKey, user)
		return nil
	}
}

func newProfileApp(store zipcard.ProfileStore, images zipcard.ImageStore) (*ProfileController, *fiber.App) {
	controller := &ProfileController{
		Store:        store,
		Resolver:     &resolver.Resolver{Images: images, FallbackURL: testFallback},
		PublicOrigin: "https://zipcard.app",
	}
	app := fiber.New(fiber.Config{ErrorHandler: ErrorHandler})
	user := zipcard.User{Id: 1, Username: "makin"}
	controller.InstallTo(testAuthorizer(user), app)
	controller.InstallPublicTo(app)
	return controller, app
}

func TestOwnProfileSynthesizesDefaults(t *testing.T) {
	assert := assert.New(t)

	controller, app := newProfileApp(inmem.NewProfileStore(), inmem.NewImageStore())
	defer controller.CloseEditors()

	req := httptest.NewRequest("GET", "/profile", nil)
	resp, err := app.Test(req)
	if !assert.NoError(err) {
		return
	}
	defer resp.Body.Close()
	assert.Equal(fiber.StatusOK, resp.StatusCode)

	var doc zipcard.ProfileDocument
	assert.NoError(json.NewDecoder(resp.Body).Decode(&doc))
	assert.Equal("makin", doc.Username)
	assert.Equal(zipcard.DefaultTheme, doc.Theme)
	assert.Equal([]zipcard.SocialLink{}, doc.Socials)
}

func TestSaveNowPersistsImmediately(t *testing.T) {
	assert := assert.New(t)

	store := inmem.NewProfileStore()
	controller, app := newProfileApp(store, inmem.NewImageStore())
	defer controller.CloseEditors()

	doc := zipcard.NewProfileDocument(0, "ignored")
	doc.FullName = "Makin C"
	doc.Title = "Barber"
	body, _ := json.Marshal(doc)

	req := httptest.NewRequest("PUT", "/profile", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req)
	if !assert.NoError(err) {
		return
	}
	defer resp.Body.Close()
	assert.Equal(fiber.StatusOK, resp.StatusCode)

	saved, err := store.ByUserId(context.Background(), 1)
	if !assert.NoError(err) {
		return
	}
	// identity comes from the session, not the payload
	assert.Equal(zipcard.UserId(1), saved.UserId)
	assert.Equal("makin", saved.Username)
	assert.Equal("Makin C", saved.FullName)
}

func TestAutosaveDebouncesBurst(t *testing.T) {
	assert := assert.New(t)

	var savesMu sync.Mutex
	var saves []zipcard.ProfileDocument
	store := &mock.ProfileService{
		ByUserIdFn: func(ctx context.Context, userId zipcard.UserId) (zipcard.ProfileDocument, error) {
			return zipcard.ProfileDocument{}, zipcard.ErrProfileNotFound
		},
		SaveFn: func(ctx context.Context, doc zipcard.ProfileDocument) error {
			savesMu.Lock()
			defer savesMu.Unlock()
			saves = append(saves, doc)
			return nil
		},
	}
	controller, app := newProfileApp(store, inmem.NewImageStore())
	defer controller.CloseEditors()

	patch := func(title string) {
		doc := zipcard.NewProfileDocument(0, "")
		doc.FullName = "A"
		doc.Title = title
		body, _ := json.Marshal(doc)
		req := httptest.NewRequest("PATCH", "/profile", bytes.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		resp, err := app.Test(req)
		if assert.NoError(err) {
			resp.Body.Close()
			assert.Equal(fiber.StatusAccepted, resp.StatusCode)
		}
	}

	patch("one")
	patch("two")
	patch("three")

	time.Sleep(600 * time.Millisecond)

	savesMu.Lock()
	defer savesMu.Unlock()
	if !assert.Len(saves, 1) {
		return
	}
	assert.Equal("three", saves[0].Title)
	assert.Equal(zipcard.UserId(1), saves[0].UserId)
}

func TestPublicProfileResolvesImages(t *testing.T) {
	assert := assert.New(t)

	images := inmem.NewImageStore()
	png := make([]byte, 128)
	copy(png, []byte{0x89, 0x50, 0x4E, 0x47})
	imageId, err := images.Upload(context.Background(), zipcard.ImageUpload{
		OwnerProfileId: 1, MimeType: zipcard.MimePng, Bytes: png,
	})
	if !assert.NoError(err) {
		return
	}

	store := inmem.NewProfileStore()
	doc := zipcard.NewProfileDocument(1, "makin")
	doc.FullName = "Makin C"
	doc.ProfileImageId = imageId
	doc.PhotoIds = []string{imageId, "dangling"}
	assert.NoError(store.Save(context.Background(), doc))

	controller, app := newProfileApp(store, images)
	defer controller.CloseEditors()

	req := httptest.NewRequest("GET", "/u/makin", nil)
	resp, err := app.Test(req)
	if !assert.NoError(err) {
		return
	}
	defer resp.Body.Close()
	assert.Equal(fiber.StatusOK, resp.StatusCode)

	var view PublicProfile
	assert.NoError(json.NewDecoder(resp.Body).Decode(&view))
	assert.Equal("Makin C", view.FullName)
	assert.Contains(view.ProfileImageUrl, "data:image/png;base64,")
	if assert.Len(view.Photos, 2) {
		assert.Contains(view.Photos[0], "data:image/png;base64,")
		// dangling reference degrades to the fallback, not an error
		assert.Equal(testFallback, view.Photos[1])
	}
	assert.Equal("https://zipcard.app/u/makin", view.ShareUrl)
}

func TestPublicProfileNotFound(t *testing.T) {
	controller, app := newProfileApp(inmem.NewProfileStore(), inmem.NewImageStore())
	defer controller.CloseEditors()

	req := httptest.NewRequest("GET", "/u/nobody", nil)
	resp, err := app.Test(req)
	if !assert.NoError(t, err) {
		return
	}
	defer resp.Body.Close()
	assert.Equal(t, fiber.StatusNotFound, resp.StatusCode)

	body, _ := ioutil.ReadAll(resp.Body)
	assert.Equal(t, `{"error_message":"profile not found"}`, string(body))
}

func TestShareQrServesPng(t *testing.T) {
	assert := assert.New(t)

	controller, app := newProfileApp(inmem.NewProfileStore(), inmem.NewImageStore())
	defer controller.CloseEditors()

	req := httptest.NewRequest("GET", "/profile/qr?size=256", nil)
	resp, err := app.Test(req)
	if !assert.NoError(err) {
		return
	}
	defer resp.Body.Close()
	assert.Equal(fiber.StatusOK, resp.StatusCode)
	assert.Equal("image/png", resp.Header.Get("Content-Type"))

	body, err := ioutil.ReadAll(resp.Body)
	if !assert.NoError(err) {
		return
	}
	assert.True(bytes.HasPrefix(body, []byte{0x89, 0x50, 0x4E, 0x47}))
}

func TestCloseEditorCancelsPendingAutosave(t *testing.T) {
	assert := assert.New(t)

	var savesMu sync.Mutex
	var saves int
	store := &mock.ProfileService{
		SaveFn: func(ctx context.Context, doc zipcard.ProfileDocument) error {
			savesMu.Lock()
			defer savesMu.Unlock()
			saves++
			return nil
		},
	}
	controller, app := newProfileApp(store, inmem.NewImageStore())
	defer controller.CloseEditors()

	doc := zipcard.NewProfileDocument(0, "")
	doc.Title = "pending"
	body, _ := json.Marshal(doc)
	req := httptest.NewRequest("PATCH", "/profile", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req)
	if !assert.NoError(err) {
		return
	}
	resp.Body.Close()

	req = httptest.NewRequest("DELETE", "/profile/editor", nil)
	resp, err = app.Test(req)
	if !assert.NoError(err) {
		return
	}
	resp.Body.Close()

	time.Sleep(600 * time.Millisecond)
	savesMu.Lock()
	defer savesMu.Unlock()
	assert.Equal(0, saves)
}
