package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"text/tabwriter"

	"github.com/MarcoPoloResearchLab/trainhub/internal/client"
	"github.com/MarcoPoloResearchLab/trainhub/internal/inventory"
	"github.com/MarcoPoloResearchLab/trainhub/internal/router"
	"github.com/MarcoPoloResearchLab/trainhub/internal/shell"
	"github.com/MarcoPoloResearchLab/trainhub/internal/training"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

func newSignupCommand(env *environment) *cobra.Command {
	return &cobra.Command{
		Use:   "signup <name> <email> <password>",
		Short: "Create an account and sign in",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			principal, err := env.auth.Signup(cmd.Context(), args[0], args[1], args[2])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Signed up as %s.\n", principal.Email)
			return nil
		},
	}
}

func newLoginCommand(env *environment) *cobra.Command {
	return &cobra.Command{
		Use:   "login <email> <password>",
		Short: "Sign in to an existing account",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			principal, err := env.auth.Login(cmd.Context(), args[0], args[1])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Signed in as %s.\n", principal.Email)
			return nil
		},
	}
}

func newLogoutCommand(env *environment) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Forget the stored session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := env.auth.Logout(); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Signed out.")
			return nil
		},
	}
}

type whoamiOutput struct {
	Name      string `yaml:"name"`
	Email     string `yaml:"email"`
	ExpiresAt string `yaml:"expires_at,omitempty"`
	Server    string `yaml:"server"`
}

func newWhoamiCommand(env *environment) *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the signed-in account",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			principal, err := env.principal()
			if err != nil {
				return err
			}
			output := whoamiOutput{Name: principal.Name, Email: principal.Email, Server: env.config.ServerURL}
			if !principal.ExpiresAt.IsZero() {
				output.ExpiresAt = principal.ExpiresAt.Format("2006-01-02 15:04 MST")
			}
			encoder := yaml.NewEncoder(cmd.OutOrStdout())
			defer encoder.Close()
			return encoder.Encode(output)
		},
	}
}

func newInventoryCommand(env *environment) *cobra.Command {
	inventoryCmd := &cobra.Command{
		Use:     "inventory",
		Aliases: []string{"inv"},
		Short:   "Manage inventory items",
	}

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List active inventory items",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := env.inventory()
			if err != nil {
				return err
			}
			items, err := store.Refresh(cmd.Context())
			if err != nil {
				return err
			}
			printItems(cmd.OutOrStdout(), items.Active)
			return nil
		},
	}

	var item inventory.Item
	addCmd := &cobra.Command{
		Use:   "add <description>",
		Short: "Add an inventory item",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := env.inventory()
			if err != nil {
				return err
			}
			if _, err := store.Refresh(cmd.Context()); err != nil {
				return err
			}
			item.Description = strings.Join(args, " ")
			added, err := store.Add(cmd.Context(), item)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Added %s (%s).\n", added.ID, inventory.NeedLabel(added))
			return nil
		},
	}
	addCmd.Flags().IntVarP(&item.Quantity, "quantity", "q", 0, "Quantity on hand")
	addCmd.Flags().IntVarP(&item.TargetQuantity, "target", "t", 0, "Target quantity")
	addCmd.Flags().StringVar(&item.UPC, "upc", "", "UPC barcode")
	addCmd.Flags().StringVar(&item.Number, "number", "", "Part or catalogue number")

	inventoryCmd.AddCommand(listCmd, addCmd,
		inventoryTransition(env, "remove", "Move an item to the recycling bin", (*client.InventoryStore).Remove),
		inventoryTransition(env, "restore", "Bring an item back from the recycling bin", (*client.InventoryStore).Restore),
		inventoryTransition(env, "purge", "Delete a binned item for good", (*client.InventoryStore).Purge),
	)
	return inventoryCmd
}

func inventoryTransition(env *environment, verb, short string, apply func(*client.InventoryStore, context.Context, string) (inventory.Item, error)) *cobra.Command {
	return &cobra.Command{
		Use:   verb + " <id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := env.inventory()
			if err != nil {
				return err
			}
			if _, err := store.Refresh(cmd.Context()); err != nil {
				return err
			}
			item, err := apply(store, cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: %s\n", verb, item.Description)
			return nil
		},
	}
}

func newTrainingCommand(env *environment) *cobra.Command {
	trainingCmd := &cobra.Command{
		Use:   "training",
		Short: "Browse and author training documents",
	}

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List published trainings",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			documents, err := env.api.ListTrainings(cmd.Context())
			if err != nil {
				return err
			}
			printDocuments(cmd.OutOrStdout(), documents)
			return nil
		},
	}

	showCmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Print a training as YAML",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			document, err := env.api.GetTraining(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			encoder := yaml.NewEncoder(cmd.OutOrStdout())
			defer encoder.Close()
			return encoder.Encode(map[string]any{
				"id":          document.ID,
				"title":       document.Title,
				"description": document.Description,
				"created_by":  document.CreatedBy,
				"blocks":      []training.Block(document.Blocks),
			})
		},
	}

	var draft training.Draft
	var blocksFile string
	createCmd := &cobra.Command{
		Use:   "create <title>",
		Short: "Publish a new training",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := env.trainings()
			if err != nil {
				return err
			}
			draft.Title = strings.Join(args, " ")
			if blocksFile != "" {
				blocks, err := readBlocks(blocksFile)
				if err != nil {
					return err
				}
				draft.Blocks = blocks
			}
			if _, err := store.Refresh(cmd.Context()); err != nil {
				return err
			}
			document, err := store.Create(cmd.Context(), draft)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Created %s.\n", document.ID)
			return nil
		},
	}
	createCmd.Flags().StringVarP(&draft.Description, "description", "d", "", "Short description")
	createCmd.Flags().StringVar(&draft.ThumbnailURL, "thumbnail", "", "Thumbnail image URL")
	createCmd.Flags().StringVar(&blocksFile, "blocks", "", "YAML file with the content blocks")

	trainingCmd.AddCommand(listCmd, showCmd, createCmd, newBlockCommand(env),
		trainingTransition(env, "delete", "Move a training to the recycling bin", (*client.TrainingStore).Remove),
		trainingTransition(env, "restore", "Bring a training back from the recycling bin", (*client.TrainingStore).Restore),
		trainingTransition(env, "purge", "Delete a binned training for good", (*client.TrainingStore).Purge),
	)
	return trainingCmd
}

func newBlockCommand(env *environment) *cobra.Command {
	blockCmd := &cobra.Command{
		Use:   "block",
		Short: "Rearrange the content blocks of a training",
	}
	moveCmd := &cobra.Command{
		Use:   "move <training-id> <block-id> <position>",
		Short: "Move a block to a zero-based position",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			position, err := strconv.Atoi(args[2])
			if err != nil {
				return fmt.Errorf("position must be a number: %w", err)
			}
			store, err := env.trainings()
			if err != nil {
				return err
			}
			document, err := store.MoveBlock(cmd.Context(), args[0], args[1], position)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Moved block %s of %s to %d.\n", args[1], document.Title, position)
			return nil
		},
	}
	removeCmd := &cobra.Command{
		Use:   "remove <training-id> <block-id>",
		Short: "Remove a block from a training",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := env.trainings()
			if err != nil {
				return err
			}
			document, err := store.RemoveBlock(cmd.Context(), args[0], args[1])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Removed block %s; %s has %d left.\n", args[1], document.Title, len(document.Blocks))
			return nil
		},
	}
	blockCmd.AddCommand(moveCmd, removeCmd)
	return blockCmd
}

func trainingTransition(env *environment, verb, short string, apply func(*client.TrainingStore, context.Context, string) (training.Document, error)) *cobra.Command {
	return &cobra.Command{
		Use:   verb + " <id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := env.trainings()
			if err != nil {
				return err
			}
			if _, err := store.Refresh(cmd.Context()); err != nil {
				return err
			}
			document, err := apply(store, cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: %s\n", verb, document.Title)
			return nil
		},
	}
}

func newBinCommand(env *environment) *cobra.Command {
	return &cobra.Command{
		Use:   "bin",
		Short: "List everything in the recycling bin",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			items, err := env.inventory()
			if err != nil {
				return err
			}
			binned, err := items.Refresh(cmd.Context())
			if err != nil {
				return err
			}
			trainings, err := env.trainings()
			if err != nil {
				return err
			}
			documents, err := trainings.Refresh(cmd.Context())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(binned.Deleted) == 0 && len(documents.Deleted) == 0 {
				fmt.Fprintln(out, "The recycling bin is empty.")
				return nil
			}
			if len(binned.Deleted) > 0 {
				fmt.Fprintln(out, "Items:")
				printItems(out, binned.Deleted)
			}
			if len(documents.Deleted) > 0 {
				fmt.Fprintln(out, "Trainings:")
				printDocuments(out, documents.Deleted)
			}
			return nil
		},
	}
}

func newBarcodeCommand(env *environment) *cobra.Command {
	return &cobra.Command{
		Use:   "barcode <upc>",
		Short: "Look up a product by UPC",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			product, err := env.api.LookupBarcode(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			encoder := yaml.NewEncoder(cmd.OutOrStdout())
			defer encoder.Close()
			return encoder.Encode(map[string]string{
				"upc":         product.UPC,
				"description": product.Description,
				"brand":       product.Brand,
				"category":    product.Category,
			})
		},
	}
}

func newUploadCommand(env *environment) *cobra.Command {
	return &cobra.Command{
		Use:       "upload <image|video> <file>",
		Short:     "Upload media for use in training blocks",
		Args:      cobra.ExactArgs(2),
		ValidArgs: []string{"image", "video"},
		RunE: func(cmd *cobra.Command, args []string) error {
			kind, path := args[0], args[1]
			if kind != "image" && kind != "video" {
				return fmt.Errorf("unknown media kind %q, expected image or video", kind)
			}
			file, err := os.Open(path)
			if err != nil {
				return err
			}
			defer file.Close()
			var url string
			if kind == "video" {
				url, err = env.api.UploadVideo(cmd.Context(), filepath.Base(path), file)
			} else {
				url, err = env.api.UploadImage(cmd.Context(), filepath.Base(path), file)
			}
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), url)
			return nil
		},
	}
}

func newWatchCommand(env *environment) *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Follow change notifications until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := env.principal(); err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			out := cmd.OutOrStdout()
			return env.api.Watch(ctx, func(event client.Event) {
				fmt.Fprintf(out, "%s  %-18s %-8s %s\n", event.Timestamp, event.Type, event.Operation, strings.Join(event.IDs, ","))
			})
		},
	}
}

func newBrowseCommand(env *environment) *cobra.Command {
	var start string
	browseCmd := &cobra.Command{
		Use:   "browse",
		Short: "Open the interactive navigator",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			app, err := shell.New(ctx, shell.Config{
				API:    env.api,
				Auth:   env.auth,
				Window: router.NewMemoryWindow(env.config.ServerURL, start),
				Out:    cmd.OutOrStdout(),
				Logger: env.logger,
			})
			if err != nil {
				return err
			}
			defer app.Close()
			env.logger.Debug("browse started", zap.String("location", start))
			return app.Run(ctx, cmd.InOrStdin())
		},
	}
	browseCmd.Flags().StringVar(&start, "path", shell.PathHome, "Location to open first")
	return browseCmd
}

func readBlocks(path string) ([]training.Block, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var blocks []training.Block
	if err := yaml.Unmarshal(data, &blocks); err != nil {
		return nil, fmt.Errorf("read blocks from %s: %w", path, err)
	}
	return blocks, nil
}

func printItems(out io.Writer, items []inventory.Item) {
	if len(items) == 0 {
		fmt.Fprintln(out, "No items.")
		return
	}
	writer := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "ID\tDESCRIPTION\tQTY\tTARGET\tNEED\tUPC")
	for _, item := range items {
		fmt.Fprintf(writer, "%s\t%s\t%d\t%d\t%s\t%s\n", item.ID, item.Description, item.Quantity, item.TargetQuantity, inventory.NeedLabel(item), item.UPC)
	}
	_ = writer.Flush()
}

func printDocuments(out io.Writer, documents []training.Document) {
	if len(documents) == 0 {
		fmt.Fprintln(out, "No trainings.")
		return
	}
	writer := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "ID\tTITLE\tAUTHOR\tBLOCKS")
	for _, document := range documents {
		fmt.Fprintf(writer, "%s\t%s\t%s\t%d\n", document.ID, document.Title, document.CreatedBy, len(document.Blocks))
	}
	_ = writer.Flush()
}
