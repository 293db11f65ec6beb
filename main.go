/*
anima-merge merges skeletal meshes described by merge recipes into a single
skeletal mesh, once or every time a recipe or one of its sources changes.
*/
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spaghettifunk/anima-merge/engine"
	"github.com/spaghettifunk/anima-merge/engine/core"
)

// recipeList collects -recipe flags, each holding one or more comma
// separated paths.
type recipeList []string

func (r *recipeList) String() string {
	return strings.Join(*r, ",")
}

func (r *recipeList) Set(value string) error {
	for _, p := range strings.Split(value, ",") {
		if p = strings.TrimSpace(p); p != "" {
			*r = append(*r, p)
		}
	}
	return nil
}

func main() {
	config := &engine.ApplicationConfig{Name: "anima-merge"}

	var recipes, assetDirs recipeList
	flag.Var(&recipes, "recipe", "merge recipe file, repeatable or comma separated")
	flag.Var(&assetDirs, "asset-dir", "extra directory to index and watch, repeatable or comma separated")
	flag.BoolVar(&config.Watch, "watch", false, "keep running and merge again when recipes or sources change")
	flag.IntVar(&config.Workers, "workers", 0, "number of merge workers (0 = one per CPU)")
	flag.StringVar(&config.LogLevel, "log-level", "", "debug, info, warn or error (overrides the recipes)")
	flag.IntVar(&config.MaxBonesPerChunk, "max-bones", 0, "bone limit per chunk for every recipe (0 = use the recipe)")
	flag.DurationVar(&config.Debounce, "debounce", 0, "delay before merging again after a change in watch mode")
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "usage: %s [flags] [recipe.toml ...]\n", os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()

	config.Recipes = append(recipes, flag.Args()...)
	config.AssetDirs = assetDirs
	if len(config.Recipes) == 0 {
		flag.Usage()
		os.Exit(2)
	}
	if config.LogLevel != "" {
		if _, err := core.ParseLogLevel(config.LogLevel); err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(2)
		}
	}

	e, err := engine.New(config)
	if err != nil {
		core.LogFatal("%s", err.Error())
	}

	if err := e.Initialize(); err != nil {
		_ = e.Shutdown()
		core.LogFatal("%s", err.Error())
	}

	// signal channel to capture system calls
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT, syscall.SIGQUIT)

	// start shutdown goroutine
	go func() {
		// capture sigterm and other system call here
		<-sigCh
		core.EventFire(core.EVENT_CODE_APPLICATION_QUIT, nil, core.EventContext{})
	}()

	// run engine
	runErr := e.Run(context.Background())
	if err := e.Shutdown(); err != nil {
		core.LogError(err.Error())
	}
	if runErr != nil {
		os.Exit(1)
	}
}
