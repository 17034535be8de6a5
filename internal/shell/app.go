package shell

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/MarcoPoloResearchLab/trainhub/internal/client"
	"github.com/MarcoPoloResearchLab/trainhub/internal/inventory"
	"github.com/MarcoPoloResearchLab/trainhub/internal/router"
	"github.com/MarcoPoloResearchLab/trainhub/internal/training"
	"github.com/MarcoPoloResearchLab/trainhub/internal/transport"
	"github.com/MarcoPoloResearchLab/trainhub/internal/validation"
	"go.uber.org/zap"
)

const prompt = "trainhub> "

var (
	errQuit      = errors.New("quit")
	errSignedOut = validation.New("session", "Please log in first.")
)

// Config wires an App.
type Config struct {
	API    *client.API
	Auth   *client.Auth
	Window *router.MemoryWindow
	Out    io.Writer
	Logger *zap.Logger
}

// App is an interactive session: a router over a Screen plus the command loop that drives it.
type App struct {
	api    *client.API
	auth   *client.Auth
	window *router.MemoryWindow
	router *router.Router
	screen *Screen
	out    io.Writer
	logger *zap.Logger

	stores     *storeSet
	storeOwner string
	cancelNav  func()
}

type storeSet struct {
	inventory *client.InventoryStore
	trainings *client.TrainingStore
}

// New builds the app and registers its routes.
func New(ctx context.Context, cfg Config) (*App, error) {
	if cfg.API == nil || cfg.Auth == nil {
		return nil, errors.New("shell: api and auth are required")
	}
	window := cfg.Window
	if window == nil {
		window = router.NewMemoryWindow("", PathHome)
	}
	out := cfg.Out
	if out == nil {
		out = io.Discard
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	r, err := router.New(router.Config{Window: window, Logger: logger, Context: ctx})
	if err != nil {
		return nil, err
	}
	app := &App{
		api:    cfg.API,
		auth:   cfg.Auth,
		window: window,
		router: r,
		screen: &Screen{},
		out:    out,
		logger: logger,
	}
	if err := r.SetRoutes(app.Routes(), app.screen); err != nil {
		r.Close()
		return nil, err
	}
	app.cancelNav = r.Subscribe(app.renderNav)
	return app, nil
}

// Close detaches the router.
func (a *App) Close() {
	a.cancelNav()
	a.router.Close()
}

// Screen exposes the mount point.
func (a *App) Screen() *Screen {
	return a.screen
}

// Start renders the window's current location.
func (a *App) Start() {
	a.router.OnRoute()
}

// Run reads commands from in until it ends or a quit command arrives.
func (a *App) Run(ctx context.Context, in io.Reader) error {
	a.Start()
	scanner := bufio.NewScanner(in)
	fmt.Fprint(a.out, prompt)
	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}
		err := a.Execute(ctx, scanner.Text())
		if errors.Is(err, errQuit) {
			return nil
		}
		if err != nil {
			fmt.Fprintf(a.out, "! %s\n", transport.UserMessage(err))
		}
		fmt.Fprint(a.out, prompt)
	}
	return scanner.Err()
}

// renderNav is the navigation bar: it redraws on every route change, including failed renders.
func (a *App) renderNav(change router.Change) {
	links := []string{PathHome}
	user := "signed out"
	if principal, ok := a.auth.Current(); ok {
		links = append(links, PathInventory, PathTraining, PathRecyclingBin)
		user = displayName(principal.Name, principal.Email)
	}
	fmt.Fprintf(a.out, "[%s] %s | %s\n", change.Location, strings.Join(links, " "), user)
	fmt.Fprint(a.out, a.screen.String())
}

// Execute runs one command line. Errors are meant for transport.UserMessage.
func (a *App) Execute(ctx context.Context, line string) error {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return nil
	}
	command, args := fields[0], fields[1:]
	switch command {
	case "quit", "exit":
		return errQuit
	case "help":
		a.printHelp()
		return nil
	case "go":
		if len(args) != 1 {
			return usage("go <path>")
		}
		a.router.Navigate(args[0], false)
		return nil
	case "click":
		if len(args) != 1 {
			return usage("click <href>")
		}
		a.window.Click(router.Anchor{Href: args[0]}, false)
		return nil
	case "back":
		a.window.Back()
		return nil
	case "forward":
		a.window.Forward()
		return nil
	case "reload":
		a.router.Navigate(a.window.Location(), true)
		return nil
	case "signup":
		if len(args) < 3 {
			return usage("signup <name> <email> <password>")
		}
		name := strings.Join(args[:len(args)-2], " ")
		if _, err := a.auth.Signup(ctx, name, args[len(args)-2], args[len(args)-1]); err != nil {
			return err
		}
		a.router.Navigate(PathInventory, false)
		return nil
	case "login":
		if len(args) != 2 {
			return usage("login <email> <password>")
		}
		if _, err := a.auth.Login(ctx, args[0], args[1]); err != nil {
			return err
		}
		a.router.Navigate(PathInventory, false)
		return nil
	case "logout":
		if err := a.auth.Logout(); err != nil {
			return err
		}
		a.stores = nil
		a.router.Navigate(PathHome, true)
		return nil
	case "open":
		if len(args) != 1 {
			return usage("open <training-id>")
		}
		a.router.Navigate(PathTrainingView+"?id="+args[0], false)
		return nil
	}
	return a.executeStoreCommand(ctx, command, args)
}

func (a *App) executeStoreCommand(ctx context.Context, command string, args []string) error {
	if _, ok := a.auth.Current(); !ok {
		return errSignedOut
	}
	stores, err := a.requireStores()
	if err != nil {
		return err
	}
	switch command {
	case "add":
		if len(args) < 3 {
			return usage("add <quantity> <target> <description>")
		}
		quantity, target, err := parseQuantities(args[0], args[1])
		if err != nil {
			return err
		}
		item := inventory.Item{Description: strings.Join(args[2:], " "), Quantity: quantity, TargetQuantity: target}
		if _, err := stores.inventory.Add(ctx, item); err != nil {
			return err
		}
		return a.show(PathInventory)
	case "remove", "restore", "purge":
		if len(args) != 1 {
			return usage(command + " <id>")
		}
		return a.binOperation(ctx, stores, command, args[0])
	case "create":
		if len(args) == 0 {
			return usage("create <title> [| <description>]")
		}
		title, description, _ := strings.Cut(strings.Join(args, " "), "|")
		document, err := stores.trainings.Create(ctx, training.Draft{
			Title:       strings.TrimSpace(title),
			Description: strings.TrimSpace(description),
		})
		if err != nil {
			return err
		}
		a.router.Navigate(PathTrainingView+"?id="+document.ID, false)
		return nil
	case "block":
		if len(args) > 0 && (args[0] == "move" || args[0] == "remove") {
			return a.editBlock(ctx, stores, args[0], args[1:])
		}
		if len(args) < 3 {
			return usage("block <training-id> <type> <text-or-url>")
		}
		return a.appendBlock(ctx, stores, args[0], training.BlockType(args[1]), strings.Join(args[2:], " "))
	case "upload":
		if len(args) != 2 || (args[0] != "image" && args[0] != "video") {
			return usage("upload image|video <file>")
		}
		return a.upload(ctx, args[0], args[1])
	case "barcode":
		if len(args) != 1 {
			return usage("barcode <upc>")
		}
		product, err := a.api.LookupBarcode(ctx, args[0])
		if err != nil {
			return err
		}
		fmt.Fprintf(a.out, "%s  %s  %s  %s\n", product.UPC, product.Description, product.Brand, product.Category)
		return nil
	default:
		return usage("help")
	}
}

// binOperation applies a recycling-bin operation to whichever store knows the id.
func (a *App) binOperation(ctx context.Context, stores *storeSet, command, id string) error {
	items, err := stores.inventory.Refresh(ctx)
	if err != nil {
		return err
	}
	if _, _, found := items.Find(id); found {
		switch command {
		case "remove":
			_, err = stores.inventory.Remove(ctx, id)
		case "restore":
			_, err = stores.inventory.Restore(ctx, id)
		default:
			_, err = stores.inventory.Purge(ctx, id)
		}
		if err != nil {
			return err
		}
		return a.show(a.currentPath())
	}
	if _, err := stores.trainings.Refresh(ctx); err != nil {
		return err
	}
	switch command {
	case "remove":
		_, err = stores.trainings.Remove(ctx, id)
	case "restore":
		_, err = stores.trainings.Restore(ctx, id)
	default:
		_, err = stores.trainings.Purge(ctx, id)
	}
	if err != nil {
		return err
	}
	return a.show(a.currentPath())
}

func (a *App) appendBlock(ctx context.Context, stores *storeSet, id string, kind training.BlockType, value string) error {
	if _, err := stores.trainings.Refresh(ctx); err != nil {
		return err
	}
	document, _, found := stores.trainings.Documents().Find(id)
	if !found {
		return validation.New("id", "training "+id+" not found")
	}
	content := map[string]any{}
	switch kind {
	case training.BlockVideo, training.BlockImage:
		content["url"] = value
	case training.BlockCode:
		content["code"] = value
	case training.BlockList:
		items := make([]any, 0)
		for _, item := range strings.Split(value, ";") {
			if trimmed := strings.TrimSpace(item); trimmed != "" {
				items = append(items, trimmed)
			}
		}
		content["items"] = items
	case training.BlockDivider:
	default:
		content["text"] = value
	}
	document.Blocks = append(document.Blocks, training.Block{Type: kind, Order: len(document.Blocks), Content: content})
	if _, err := stores.trainings.Update(ctx, document); err != nil {
		return err
	}
	a.router.Navigate(PathTrainingView+"?id="+id, true)
	return nil
}

func (a *App) upload(ctx context.Context, kind, path string) error {
	file, err := os.Open(path)
	if err != nil {
		return validation.New("file", "cannot read "+path)
	}
	defer file.Close()
	var url string
	if kind == "video" {
		url, err = a.api.UploadVideo(ctx, filepath.Base(path), file)
	} else {
		url, err = a.api.UploadImage(ctx, filepath.Base(path), file)
	}
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "uploaded: %s\n", url)
	return nil
}

// requireStores returns the stores of the signed-in principal or asks for a login.
func (a *App) requireStores() (*storeSet, error) {
	principal, ok := a.auth.Current()
	if !ok {
		a.stores = nil
		return nil, router.Redirect(PathLogin)
	}
	if a.stores != nil && a.storeOwner == principal.Email {
		return a.stores, nil
	}
	inventoryStore, err := client.NewInventoryStore(a.api, principal.Email, a.logger)
	if err != nil {
		return nil, err
	}
	trainingStore, err := client.NewTrainingStore(a.api, principal.Email, a.logger)
	if err != nil {
		return nil, err
	}
	a.stores = &storeSet{inventory: inventoryStore, trainings: trainingStore}
	a.storeOwner = principal.Email
	return a.stores, nil
}

// show renders path, re-rendering when the window is already there.
func (a *App) show(path string) error {
	a.router.Navigate(path, true)
	return nil
}

func (a *App) currentPath() string {
	location := a.window.Location()
	if index := strings.IndexAny(location, "?#"); index >= 0 {
		return location[:index]
	}
	return location
}

func (a *App) editBlock(ctx context.Context, stores *storeSet, action string, args []string) error {
	var (
		document training.Document
		err      error
	)
	switch action {
	case "move":
		if len(args) != 3 {
			return usage("block move <training-id> <block-id> <position>")
		}
		position, convErr := strconv.Atoi(args[2])
		if convErr != nil {
			return usage("block move <training-id> <block-id> <position>")
		}
		document, err = stores.trainings.MoveBlock(ctx, args[0], args[1], position)
	default:
		if len(args) != 2 {
			return usage("block remove <training-id> <block-id>")
		}
		document, err = stores.trainings.RemoveBlock(ctx, args[0], args[1])
	}
	if err != nil {
		return err
	}
	a.router.Navigate(PathTrainingView+"?id="+document.ID, true)
	return nil
}

func (a *App) printHelp() {
	lines := []string{
		"go <path> | click <href> | back | forward | reload",
		"signup <name> <email> <password> | login <email> <password> | logout",
		"add <quantity> <target> <description> | remove <id> | restore <id> | purge <id>",
		"create <title> [| <description>] | block <training-id> <type> <text-or-url> | open <id>",
		"block move <training-id> <block-id> <position> | block remove <training-id> <block-id>",
		"upload image|video <file> | barcode <upc> | quit",
	}
	for _, line := range lines {
		fmt.Fprintln(a.out, line)
	}
}

func usage(syntax string) error {
	return validation.New("command", "usage: "+syntax)
}

func parseQuantities(quantity, target string) (int, int, error) {
	q, err := strconv.Atoi(quantity)
	if err != nil {
		return 0, 0, usage("add <quantity> <target> <description>")
	}
	t, err := strconv.Atoi(target)
	if err != nil {
		return 0, 0, usage("add <quantity> <target> <description>")
	}
	return q, t, nil
}
