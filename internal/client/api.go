// Package client is the typed client core of trainhub: the API surface, the signed-in
// session and the two recycling-bin stores built on softdelete.Manager.
package client

import (
	"context"
	"io"
	"net/url"

	"github.com/MarcoPoloResearchLab/trainhub/internal/barcode"
	"github.com/MarcoPoloResearchLab/trainhub/internal/inventory"
	"github.com/MarcoPoloResearchLab/trainhub/internal/training"
	"github.com/MarcoPoloResearchLab/trainhub/internal/transport"
)

// Principal is the identity the server reports for an account.
type Principal struct {
	Name  string `json:"name"`
	Email string `json:"email"`
}

// Grant is the server response to a successful signup or login.
type Grant struct {
	User      Principal `json:"user"`
	Token     string    `json:"token"`
	ExpiresIn int64     `json:"expires_in"`
}

// UserRecord is an account together with its inventory lists.
type UserRecord struct {
	Name             string           `json:"name"`
	Email            string           `json:"email"`
	Inventory        []inventory.Item `json:"inventory"`
	DeletedInventory []inventory.Item `json:"deleted_inventory"`
}

// Record returns the inventory part of the account.
func (u UserRecord) Record() inventory.Record {
	return inventory.Record{Email: u.Email, Inventory: u.Inventory, DeletedInventory: u.DeletedInventory}
}

// API maps each server endpoint to a method.
type API struct {
	transport *transport.Client
}

// NewAPI wraps a transport.
func NewAPI(t *transport.Client) *API {
	return &API{transport: t}
}

func (a *API) Signup(ctx context.Context, name, email, password string) (Grant, error) {
	var out Grant
	err := a.transport.Post(ctx, "/api/signup", nil, map[string]string{
		"name":     name,
		"email":    email,
		"password": password,
	}, &out)
	return out, err
}

func (a *API) Login(ctx context.Context, email, password string) (Grant, error) {
	var out Grant
	err := a.transport.Post(ctx, "/api/login", nil, map[string]string{
		"email":    email,
		"password": password,
	}, &out)
	return out, err
}

func (a *API) GetUser(ctx context.Context, email string) (UserRecord, error) {
	var out struct {
		User UserRecord `json:"user"`
	}
	err := a.transport.Get(ctx, "/api/user", emailQuery(email), &out)
	return out.User, err
}

// SaveUser replaces both inventory lists and returns them as stored.
func (a *API) SaveUser(ctx context.Context, record inventory.Record) (inventory.Record, error) {
	body := inventory.Record{
		Email:            record.Email,
		Inventory:        nonNil(record.Inventory),
		DeletedInventory: nonNil(record.DeletedInventory),
	}
	var out struct {
		Inventory        []inventory.Item `json:"inventory"`
		DeletedInventory []inventory.Item `json:"deleted_inventory"`
	}
	if err := a.transport.Post(ctx, "/api/user", nil, body, &out); err != nil {
		return inventory.Record{}, err
	}
	return inventory.Record{Email: record.Email, Inventory: out.Inventory, DeletedInventory: out.DeletedInventory}, nil
}

func (a *API) ListTrainings(ctx context.Context) ([]training.Document, error) {
	var out struct {
		Trainings []training.Document `json:"trainings"`
	}
	err := a.transport.Get(ctx, "/api/trainings", nil, &out)
	return out.Trainings, err
}

func (a *API) ListDeletedTrainings(ctx context.Context, email string) ([]training.Document, error) {
	var out struct {
		Trainings []training.Document `json:"trainings"`
	}
	err := a.transport.Get(ctx, "/api/trainings/deleted", emailQuery(email), &out)
	return out.Trainings, err
}

func (a *API) GetTraining(ctx context.Context, id string) (training.Document, error) {
	var out struct {
		Training training.Document `json:"training"`
	}
	err := a.transport.Get(ctx, "/api/training", url.Values{"id": {id}}, &out)
	return out.Training, err
}

func (a *API) CreateTraining(ctx context.Context, email string, draft training.Draft) (training.Document, error) {
	var out struct {
		Training training.Document `json:"training"`
	}
	err := a.transport.Post(ctx, "/api/trainings", emailQuery(email), draft, &out)
	return out.Training, err
}

// trainingUpdatePayload is the wire form of a training.Patch. An empty block list is sent
// as [] so the server clears the blocks; a nil list is sent as null and leaves them.
type trainingUpdatePayload struct {
	ID           string           `json:"id"`
	Title        string           `json:"title,omitempty"`
	Description  string           `json:"description,omitempty"`
	ThumbnailURL string           `json:"thumbnail_url,omitempty"`
	Blocks       []training.Block `json:"blocks"`
}

func (a *API) UpdateTraining(ctx context.Context, patch training.Patch) (training.Document, error) {
	var out struct {
		Training training.Document `json:"training"`
	}
	payload := trainingUpdatePayload{
		ID:           patch.ID,
		Title:        patch.Title,
		Description:  patch.Description,
		ThumbnailURL: patch.ThumbnailURL,
		Blocks:       patch.Blocks,
	}
	err := a.transport.Post(ctx, "/api/training/update", nil, payload, &out)
	return out.Training, err
}

func (a *API) DeleteTraining(ctx context.Context, id, email string) error {
	return a.transport.Post(ctx, "/api/training/delete", nil, trainingReference(id, email), nil)
}

func (a *API) RestoreTraining(ctx context.Context, id, email string) error {
	return a.transport.Post(ctx, "/api/training/restore", nil, trainingReference(id, email), nil)
}

func (a *API) PurgeTraining(ctx context.Context, id, email string) error {
	return a.transport.Post(ctx, "/api/training/permanent-delete", nil, trainingReference(id, email), nil)
}

// UploadVideo stores a video and returns the URL it is served from.
func (a *API) UploadVideo(ctx context.Context, filename string, content io.Reader) (string, error) {
	var out struct {
		URL string `json:"video_url"`
	}
	err := a.transport.Upload(ctx, "/api/upload-video", "video", filename, content, &out)
	return out.URL, err
}

// UploadImage stores an image and returns the URL it is served from.
func (a *API) UploadImage(ctx context.Context, filename string, content io.Reader) (string, error) {
	var out struct {
		URL string `json:"image_url"`
	}
	err := a.transport.Upload(ctx, "/api/upload-image", "image", filename, content, &out)
	return out.URL, err
}

func (a *API) LookupBarcode(ctx context.Context, upc string) (barcode.Product, error) {
	var out struct {
		Product barcode.Product `json:"product"`
	}
	err := a.transport.Get(ctx, "/api/barcode-lookup", url.Values{"upc": {upc}}, &out)
	return out.Product, err
}

func emailQuery(email string) url.Values {
	if email == "" {
		return nil
	}
	return url.Values{"email": {email}}
}

func trainingReference(id, email string) map[string]string {
	return map[string]string{"id": id, "email": email}
}

func nonNil(items []inventory.Item) []inventory.Item {
	if items == nil {
		return []inventory.Item{}
	}
	return items
}
