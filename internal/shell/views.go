package shell

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/MarcoPoloResearchLab/trainhub/internal/inventory"
	"github.com/MarcoPoloResearchLab/trainhub/internal/router"
	"github.com/MarcoPoloResearchLab/trainhub/internal/training"
)

// Paths of the navigation surface.
const (
	PathHome          = "/"
	PathLogin         = "/login"
	PathSignup        = "/signup"
	PathInventory     = "/inventory"
	PathRecyclingBin  = "/recycling-bin"
	PathTraining      = "/training"
	PathTrainingNew   = "/training/create"
	PathTrainingView  = "/training/view"
	PathTrainingMods  = "/training/modules"
	PathTrainingVideo = "/training/videos"
)

// Routes returns the route table; home comes first so unknown paths land there.
func (a *App) Routes() []router.Route {
	return []router.Route{
		{Path: PathHome, Render: a.renderHome},
		{Path: PathLogin, Render: a.renderLogin},
		{Path: PathSignup, Render: a.renderSignup},
		{Path: PathInventory, Render: a.renderInventory},
		{Path: PathRecyclingBin, Render: a.renderRecyclingBin},
		{Path: PathTraining, Render: a.renderTraining},
		{Path: PathTrainingNew, Render: a.renderTrainingCreate},
		{Path: PathTrainingView, Render: a.renderTrainingView},
		{Path: PathTrainingMods, Render: a.renderTrainingModules},
		{Path: PathTrainingVideo, Render: a.renderTrainingVideos},
	}
}

func (a *App) renderHome(_ context.Context, mount router.Mount) error {
	screen := mount.(*Screen)
	screen.Printf("TrainHub")
	if principal, ok := a.auth.Current(); ok {
		screen.Printf("Welcome back, %s.", displayName(principal.Name, principal.Email))
		screen.Printf("Inventory: %s   Training: %s   Recycling bin: %s", PathInventory, PathTraining, PathRecyclingBin)
		return nil
	}
	screen.Printf("Track your inventory and share training material.")
	screen.Printf("Log in at %s or create an account at %s.", PathLogin, PathSignup)
	return nil
}

func (a *App) renderLogin(_ context.Context, mount router.Mount) error {
	screen := mount.(*Screen)
	screen.Printf("Log in")
	screen.Printf("  login <email> <password>")
	screen.Printf("No account yet? Go to %s.", PathSignup)
	return nil
}

func (a *App) renderSignup(_ context.Context, mount router.Mount) error {
	screen := mount.(*Screen)
	screen.Printf("Create account")
	screen.Printf("  signup <name> <email> <password>")
	screen.Printf("Already registered? Go to %s.", PathLogin)
	return nil
}

func (a *App) renderInventory(ctx context.Context, mount router.Mount) error {
	stores, err := a.requireStores()
	if err != nil {
		return err
	}
	items, err := stores.inventory.Refresh(ctx)
	if err != nil {
		return err
	}
	screen := mount.(*Screen)
	screen.Printf("Inventory (%d)", len(items.Active))
	if len(items.Active) == 0 {
		screen.Printf("No items yet. Add one with: add <quantity> <target> <description>")
	}
	for _, item := range items.Active {
		screen.Printf("%s  %s", item.ID, describeItem(item))
	}
	if len(items.Deleted) > 0 {
		screen.Printf("%d item(s) in the recycling bin.", len(items.Deleted))
	}
	return nil
}

func (a *App) renderRecyclingBin(ctx context.Context, mount router.Mount) error {
	stores, err := a.requireStores()
	if err != nil {
		return err
	}
	items, err := stores.inventory.Refresh(ctx)
	if err != nil {
		return err
	}
	documents, err := stores.trainings.Refresh(ctx)
	if err != nil {
		return err
	}
	screen := mount.(*Screen)
	screen.Printf("Recycling bin")
	if len(items.Deleted) == 0 && len(documents.Deleted) == 0 {
		screen.Printf("The recycling bin is empty.")
		return nil
	}
	for _, item := range items.Deleted {
		screen.Printf("item      %s  %s", item.ID, describeItem(item))
	}
	for _, document := range documents.Deleted {
		screen.Printf("training  %s  %s", document.ID, document.Title)
	}
	screen.Printf("restore <id> brings an entry back; purge <id> deletes it for good.")
	return nil
}

func (a *App) renderTraining(ctx context.Context, mount router.Mount) error {
	stores, err := a.requireStores()
	if err != nil {
		return err
	}
	documents, err := stores.trainings.Refresh(ctx)
	if err != nil {
		return err
	}
	screen := mount.(*Screen)
	screen.Printf("Training (%d)", len(documents.Active))
	for _, document := range documents.Active {
		screen.Printf("%s  %s  by %s  [%d blocks]", document.ID, document.Title, document.CreatedBy, len(document.Blocks))
	}
	screen.Printf("Open one with: open <id>. New training: %s", PathTrainingNew)
	return nil
}

func (a *App) renderTrainingCreate(_ context.Context, mount router.Mount) error {
	if _, err := a.requireStores(); err != nil {
		return err
	}
	screen := mount.(*Screen)
	screen.Printf("New training")
	screen.Printf("  create <title> [| <description>]")
	screen.Printf("Add blocks afterwards with: block <training-id> <type> <text-or-url>")
	return nil
}

func (a *App) renderTrainingView(ctx context.Context, mount router.Mount) error {
	stores, err := a.requireStores()
	if err != nil {
		return err
	}
	id := queryValue(a.window.Location(), "id")
	if id == "" {
		return fmt.Errorf("no training selected")
	}
	document, err := stores.trainings.Get(ctx, id)
	if err != nil {
		return err
	}
	screen := mount.(*Screen)
	screen.Printf("%s", document.Title)
	if document.Description != "" {
		screen.Printf("%s", document.Description)
	}
	screen.Printf("by %s", document.CreatedBy)
	for _, block := range document.Blocks {
		screen.Printf("#%d %s", block.Order, block.ID)
		for _, line := range blockLines(block) {
			screen.Printf("%s", line)
		}
	}
	return nil
}

func (a *App) renderTrainingModules(ctx context.Context, mount router.Mount) error {
	stores, err := a.requireStores()
	if err != nil {
		return err
	}
	documents, err := stores.trainings.Refresh(ctx)
	if err != nil {
		return err
	}
	screen := mount.(*Screen)
	screen.Printf("Training modules")
	for index, document := range documents.Active {
		screen.Printf("Module %d: %s", index+1, document.Title)
		if document.Description != "" {
			screen.Printf("  %s", document.Description)
		}
	}
	return nil
}

func (a *App) renderTrainingVideos(ctx context.Context, mount router.Mount) error {
	stores, err := a.requireStores()
	if err != nil {
		return err
	}
	documents, err := stores.trainings.Refresh(ctx)
	if err != nil {
		return err
	}
	screen := mount.(*Screen)
	screen.Printf("Video resources")
	found := 0
	for _, document := range documents.Active {
		for _, block := range document.Blocks {
			if block.Type != training.BlockVideo {
				continue
			}
			found++
			screen.Printf("%s: %v", document.Title, block.Content["url"])
		}
	}
	if found == 0 {
		screen.Printf("No videos have been published yet.")
	}
	return nil
}

func describeItem(item inventory.Item) string {
	parts := []string{item.Description, fmt.Sprintf("qty %d/%d", item.Quantity, item.TargetQuantity), inventory.NeedLabel(item)}
	if item.UPC != "" {
		parts = append(parts, "upc "+item.UPC)
	}
	if item.Number != "" {
		parts = append(parts, "#"+item.Number)
	}
	return strings.Join(parts, "  ")
}

func blockLines(block training.Block) []string {
	text := func(key string) string {
		value, _ := block.Content[key].(string)
		return value
	}
	switch block.Type {
	case training.BlockTitle:
		return []string{"", "## " + text("text")}
	case training.BlockText:
		return []string{text("text")}
	case training.BlockQuote:
		return []string{"> " + text("text")}
	case training.BlockVideo:
		return []string{"[video] " + text("url")}
	case training.BlockImage:
		return []string{"[image] " + text("url")}
	case training.BlockCode:
		return []string{"```", text("code"), "```"}
	case training.BlockList:
		items, _ := block.Content["items"].([]any)
		lines := make([]string, 0, len(items))
		for _, item := range items {
			lines = append(lines, fmt.Sprintf("- %v", item))
		}
		return lines
	case training.BlockDivider:
		return []string{"---"}
	default:
		return nil
	}
}

func displayName(name, email string) string {
	if name != "" {
		return name
	}
	return email
}

func queryValue(location, key string) string {
	index := strings.IndexByte(location, '?')
	if index < 0 {
		return ""
	}
	query := location[index+1:]
	if hash := strings.IndexByte(query, '#'); hash >= 0 {
		query = query[:hash]
	}
	values, err := url.ParseQuery(query)
	if err != nil {
		return ""
	}
	return values.Get(key)
}
