// gekko-cook cooks a prefab and its dependency graph into one flattened,
// override-free YAML document.
package main

import (
	"flag"
	"fmt"
	"io"
	"os"

	gekko "github.com/gekko3d/gekko-prefab"
	"github.com/prometheus/client_golang/prometheus"
)

func main() {
	if err := run(os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("gekko-cook", flag.ContinueOnError)
	configPath := fs.String("config", "", "path to editor.toml (defaults are used when empty)")
	prefabArg := fs.String("prefab", "", "uuid of the prefab to cook")
	outPath := fs.String("out", "", "write the cooked prefab here instead of stdout")
	noVerify := fs.Bool("no-verify", false, "skip the serialization round-trip check")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg := gekko.DefaultEditorConfig()
	if *configPath != "" {
		var err error
		if cfg, err = gekko.LoadEditorConfig(*configPath); err != nil {
			return err
		}
	}

	root, err := gekko.ParsePrefabUuid(*prefabArg)
	if err != nil {
		return err
	}

	logger, err := gekko.NewZapLogger(cfg.Logging)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer logger.Sync()

	storage, err := cfg.Assets.OpenStorage()
	if err != nil {
		return err
	}
	if closer, ok := storage.(io.Closer); ok {
		defer closer.Close()
	}

	registry := gekko.NewComponentRegistry()
	gekko.RegisterBuiltinComponents(registry)

	metrics := gekko.NewEditorMetrics(prometheus.NewRegistry())
	loader := gekko.NewAssetLoader(storage, registry, logger)
	cooker := gekko.NewPrefabCooker(loader, registry, logger, metrics)
	cooker.Verify = cfg.Cook.Verify && !*noVerify

	res, err := cooker.Cook(root)
	if err != nil {
		return err
	}
	defer loader.Release(res.RootHandle)

	data, err := gekko.MarshalCookedPrefab(registry, res.Cooked)
	if err != nil {
		return err
	}

	logger.Infof("cooked %s: %d prefabs, %d entities", root, len(res.Order), len(res.Cooked.Entities))
	if *outPath == "" {
		_, err = stdout.Write(data)
		return err
	}
	return os.WriteFile(*outPath, data, 0o644)
}
