package commands

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/filemount/filemount/internal/cli/output"
	"github.com/filemount/filemount/internal/cli/prompt"
	"github.com/filemount/filemount/pkg/api"
	"github.com/filemount/filemount/pkg/config"
	"github.com/filemount/filemount/pkg/mount"
	"github.com/filemount/filemount/pkg/record"
	"github.com/filemount/filemount/pkg/uploader"
)

var assetCmd = &cobra.Command{
	Use:   "asset",
	Short: "Manage assets and their attached files",
	Long: `Manage assets directly against the configured stores, without going
through the API server.

Subcommands:
  create   Create a new asset
  list     List assets
  show     Display one asset
  attach   Attach a local file to an asset
  rm       Delete an asset and its files`,
}

var (
	assetListOutput string
	attachAttribute string
	rmForce         bool
)

var assetCreateCmd = &cobra.Command{
	Use:   "create [name]",
	Short: "Create a new asset",
	Long: `Create a new asset.

Prompts for the name when it is not given as an argument.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runAssetCreate,
}

var assetListCmd = &cobra.Command{
	Use:   "list",
	Short: "List assets",
	RunE:  runAssetList,
}

var assetShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Display one asset",
	Args:  cobra.ExactArgs(1),
	RunE:  runAssetShow,
}

var assetAttachCmd = &cobra.Command{
	Use:   "attach <id> <file>...",
	Short: "Attach local files to an asset",
	Long: `Attach one or more local files to an asset attribute.

The avatar attribute holds a single file; attaching replaces the current
one. The gallery attribute holds a set and is replaced wholesale.

Examples:
  # Replace the avatar
  filemount asset attach 42 photo.png

  # Replace the gallery
  filemount asset attach 42 a.png b.png --attribute gallery`,
	Args: cobra.MinimumNArgs(2),
	RunE: runAssetAttach,
}

var assetRmCmd = &cobra.Command{
	Use:   "rm <id>",
	Short: "Delete an asset and its files",
	Args:  cobra.ExactArgs(1),
	RunE:  runAssetRm,
}

func init() {
	assetListCmd.Flags().StringVarP(&assetListOutput, "output", "o", "table", "Output format (table|json|yaml)")
	assetAttachCmd.Flags().StringVar(&attachAttribute, "attribute", api.AttrAvatar, "Target attribute (avatar|gallery)")
	assetRmCmd.Flags().BoolVarP(&rmForce, "force", "f", false, "Skip confirmation prompt")

	assetCmd.AddCommand(assetCreateCmd)
	assetCmd.AddCommand(assetListCmd)
	assetCmd.AddCommand(assetShowCmd)
	assetCmd.AddCommand(assetAttachCmd)
	assetCmd.AddCommand(assetRmCmd)
}

// assetEnv bundles the stores an asset command operates on.
type assetEnv struct {
	store    *record.Store
	registry *mount.Registry
	close    func()
}

// openAssetEnv wires the record store, staging area, blob store and mounted
// attributes from configuration.
func openAssetEnv(ctx context.Context) (*assetEnv, error) {
	cfg, err := config.MustLoad(GetConfigFile())
	if err != nil {
		return nil, err
	}

	store, err := record.NewStore(cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to open record store: %w", err)
	}

	area, closeStaging, err := config.BuildStagingArea(cfg.Staging)
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	blobs, err := config.BuildBlobStore(ctx, cfg.Blob)
	if err != nil {
		_ = closeStaging()
		_ = store.Close()
		return nil, err
	}

	factory := uploader.NewFactory(area, blobs, cfg.Mount.UploaderOptions()...)
	registry := mount.NewRegistry()

	avatarOpts := cfg.Mount.MountOptions(factory)
	if err := registry.Mount(api.AttrAvatar, avatarOpts); err != nil {
		_ = closeStaging()
		_ = store.Close()
		return nil, err
	}
	galleryOpts := cfg.Mount.MountOptions(factory)
	galleryOpts.Multiple = true
	if err := registry.Mount(api.AttrGallery, galleryOpts); err != nil {
		_ = closeStaging()
		_ = store.Close()
		return nil, err
	}

	return &assetEnv{
		store:    store,
		registry: registry,
		close: func() {
			_ = closeStaging()
			_ = store.Close()
		},
	}, nil
}

// loadAsset resolves an id argument to an asset row.
func (e *assetEnv) loadAsset(ctx context.Context, arg string) (*record.Asset, error) {
	id, err := strconv.ParseUint(arg, 10, 32)
	if err != nil {
		return nil, fmt.Errorf("invalid asset id: %q", arg)
	}
	asset, err := e.store.GetAsset(ctx, uint(id))
	if err != nil {
		return nil, err
	}
	if asset == nil {
		return nil, fmt.Errorf("asset %d not found", id)
	}
	return asset, nil
}

func runAssetCreate(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	var name string
	if len(args) > 0 {
		name = args[0]
	} else {
		var err error
		name, err = prompt.InputRequired("Asset name")
		if err != nil {
			if prompt.IsAborted(err) {
				fmt.Println("Aborted.")
				return nil
			}
			return err
		}
	}

	env, err := openAssetEnv(ctx)
	if err != nil {
		return err
	}
	defer env.close()

	asset := &record.Asset{Name: name}
	if err := env.store.CreateAsset(ctx, asset); err != nil {
		return fmt.Errorf("failed to create asset: %w", err)
	}

	fmt.Printf("Created asset %d (%s)\n", asset.ID, asset.Name)
	return nil
}

func runAssetList(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	env, err := openAssetEnv(ctx)
	if err != nil {
		return err
	}
	defer env.close()

	assets, err := env.store.ListAssets(ctx)
	if err != nil {
		return err
	}

	format, err := output.ParseFormat(assetListOutput)
	if err != nil {
		return err
	}

	if format != output.FormatTable {
		printer := output.NewPrinter(os.Stdout, format)
		return printer.Print(assets)
	}

	table := output.NewTableData("ID", "NAME", "AVATAR", "GALLERY", "UPDATED")
	for i := range assets {
		a := &assets[i]
		rec := record.AssetRecord{Asset: a}
		gallery := 0
		if ids, ok := rec.ReadColumn(record.ColumnGallery); ok {
			gallery = len(ids)
		}
		table.AddRow(
			strconv.FormatUint(uint64(a.ID), 10),
			a.Name,
			a.Avatar,
			strconv.Itoa(gallery),
			a.UpdatedAt.Format("2006-01-02 15:04:05"),
		)
	}
	return output.PrintTable(os.Stdout, table)
}

func runAssetShow(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	env, err := openAssetEnv(ctx)
	if err != nil {
		return err
	}
	defer env.close()

	asset, err := env.loadAsset(ctx, args[0])
	if err != nil {
		return err
	}

	rec := record.AssetRecord{Asset: asset}
	gallery, _ := rec.ReadColumn(record.ColumnGallery)

	pairs := [][2]string{
		{"ID", strconv.FormatUint(uint64(asset.ID), 10)},
		{"Name", asset.Name},
		{"Avatar", asset.Avatar},
		{"Gallery", strings.Join(gallery, ", ")},
		{"Created", asset.CreatedAt.Format("2006-01-02 15:04:05")},
		{"Updated", asset.UpdatedAt.Format("2006-01-02 15:04:05")},
	}
	return output.SimpleTable(os.Stdout, pairs)
}

func runAssetAttach(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	attribute := attachAttribute
	if attribute != api.AttrAvatar && attribute != api.AttrGallery {
		return fmt.Errorf("unknown attribute: %q (valid: %s, %s)", attribute, api.AttrAvatar, api.AttrGallery)
	}
	files := args[1:]
	if attribute == api.AttrAvatar && len(files) > 1 {
		return fmt.Errorf("attribute %q accepts a single file", attribute)
	}

	env, err := openAssetEnv(ctx)
	if err != nil {
		return err
	}
	defer env.close()

	asset, err := env.loadAsset(ctx, args[0])
	if err != nil {
		return err
	}

	payloads := make([]uploader.Payload, 0, len(files))
	for _, path := range files {
		f, err := os.Open(path)
		if err != nil {
			return fmt.Errorf("failed to open %s: %w", path, err)
		}
		defer func() { _ = f.Close() }()
		payloads = append(payloads, uploader.Payload{
			Filename: filepath.Base(path),
			Content:  f,
		})
	}

	rec := env.store.NewAssetRecord(asset)
	defer env.registry.Release(rec)

	m, err := env.registry.Mounter(rec, attribute)
	if err != nil {
		return err
	}

	prev, err := m.SnapshotPrevious(ctx)
	if err != nil {
		return err
	}
	if err := m.Cache(ctx, payloads...); err != nil {
		return err
	}
	if err := m.Store(ctx); err != nil {
		return err
	}
	if err := env.store.SaveAsset(ctx, asset); err != nil {
		return err
	}
	if err := m.CleanupPrevious(ctx, prev); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to clean up superseded files: %v\n", err)
	}

	fmt.Printf("Attached %d file(s) to asset %d %s: %s\n",
		len(files), asset.ID, attribute, strings.Join(m.Identifiers(), ", "))
	return nil
}

func runAssetRm(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	env, err := openAssetEnv(ctx)
	if err != nil {
		return err
	}
	defer env.close()

	asset, err := env.loadAsset(ctx, args[0])
	if err != nil {
		return err
	}

	ok, err := prompt.ConfirmWithForce(
		fmt.Sprintf("Delete asset %d (%s) and all its files?", asset.ID, asset.Name), rmForce)
	if err != nil {
		return err
	}
	if !ok {
		fmt.Println("Aborted.")
		return nil
	}

	rec := env.store.NewAssetRecord(asset)
	defer env.registry.Release(rec)

	for _, attribute := range []string{api.AttrAvatar, api.AttrGallery} {
		m, err := env.registry.Mounter(rec, attribute)
		if err != nil {
			return err
		}
		if err := m.Remove(ctx); err != nil {
			return fmt.Errorf("failed to remove %s files: %w", attribute, err)
		}
	}

	if err := env.store.DeleteAsset(ctx, asset.ID); err != nil {
		return fmt.Errorf("failed to delete asset: %w", err)
	}

	fmt.Printf("Deleted asset %d\n", asset.ID)
	return nil
}
