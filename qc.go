// Copyright (C) The Metaboqc Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package metaboqc

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	_ "net/http/pprof"
	"os"
	"os/signal"
	"syscall"

	"git.arvados.org/arvados.git/sdk/go/arvados"
	log "github.com/sirupsen/logrus"
)

type qcCommand struct {
	platform      string
	inputDir      string
	outputDir     string
	configFile    string
	lodDir        string
	fastingFile   string
	threads       int
	fastingPolicy string
	export        exportOptions
}

func (cmd *qcCommand) RunCommand(prog string, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	var err error
	defer func() {
		if err != nil {
			fmt.Fprintf(stderr, "%s\n", err)
		}
	}()
	flags := flag.NewFlagSet("", flag.ContinueOnError)
	flags.SetOutput(stderr)
	pprof := flags.String("pprof", "", "serve Go profile data at http://`[addr]:port`")
	runlocal := flags.Bool("local", false, "run on local host (default: run in an arvados container)")
	projectUUID := flags.String("project", "", "project `UUID` for output data")
	priority := flags.Int("priority", 500, "container request priority")
	flags.StringVar(&cmd.platform, "platform", "", "metabolomics platform: p180 or nmr (default: from -config)")
	flags.StringVar(&cmd.inputDir, "input-dir", "./in", "input `directory` holding the ADNI release files")
	flags.StringVar(&cmd.outputDir, "output-dir", "./out", "output `directory`")
	flags.StringVar(&cmd.configFile, "config", "", "pipeline configuration `file` (YAML; default: standard sequence for the platform)")
	flags.StringVar(&cmd.lodDir, "lod-dir", "", "`directory` holding the p180 LOD workbooks (default: impute half minimum)")
	flags.StringVar(&cmd.fastingFile, "fasting-file", "", "baseline fasting questionnaire `file` (BIFAST)")
	flags.StringVar(&cmd.fastingPolicy, "fasting-policy", "", "what to do with participants missing from the fasting file: drop or keep (default: from -config, else drop)")
	flags.IntVar(&cmd.threads, "threads", 0, "process up to `N` cohorts concurrently (default: from -config, else 1)")
	flags.BoolVar(&cmd.export.numpy, "numpy", false, "also write each cohort's metabolite matrix as numpy")
	flags.IntVar(&cmd.export.pcaComponents, "pca-components", 0, "also write the first `N` principal components of each cohort")
	err = flags.Parse(args)
	if err == flag.ErrHelp {
		err = nil
		return 0
	} else if err != nil {
		return 2
	} else if flags.NArg() > 0 {
		err = fmt.Errorf("unrecognized command line arguments: %v", flags.Args())
		return 2
	}

	if *pprof != "" {
		go func() {
			log.Println(http.ListenAndServe(*pprof, nil))
		}()
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if !*runlocal {
		var output string
		output, err = cmd.runContainer(ctx, *projectUUID, *priority)
		if err != nil {
			return 1
		}
		fmt.Fprintln(stdout, output)
		return 0
	}

	err = cmd.run(ctx)
	if err != nil {
		return 1
	}
	return 0
}

func (cmd *qcCommand) runContainer(ctx context.Context, projectUUID string, priority int) (string, error) {
	if cmd.outputDir != "./out" {
		return "", errors.New("cannot specify output directory in container mode: not implemented")
	}
	runner := containerRunner{
		Name:        "metaboqc qc",
		Client:      arvados.NewClientFromEnv(),
		ProjectUUID: projectUUID,
		RAM:         16000000000,
		VCPUs:       4,
		Priority:    priority,
	}
	err := runner.TranslatePaths(&cmd.inputDir, &cmd.lodDir, &cmd.fastingFile, &cmd.configFile)
	if err != nil {
		return "", err
	}
	runner.Args = []string{"qc", "-local=true",
		"-platform=" + cmd.platform,
		"-input-dir=" + cmd.inputDir,
		"-output-dir=/mnt/output",
		"-config=" + cmd.configFile,
		"-lod-dir=" + cmd.lodDir,
		"-fasting-file=" + cmd.fastingFile,
		"-fasting-policy=" + cmd.fastingPolicy,
		fmt.Sprintf("-threads=%d", cmd.threads),
		fmt.Sprintf("-numpy=%v", cmd.export.numpy),
		fmt.Sprintf("-pca-components=%d", cmd.export.pcaComponents),
	}
	return runner.Run(ctx)
}

// config merges the configuration file (or the platform default) with
// the command line overrides.
func (cmd *qcCommand) config() (*Config, error) {
	var cfg *Config
	if cmd.configFile != "" {
		var err error
		cfg, err = LoadConfig(cmd.configFile)
		if err != nil {
			return nil, err
		}
		if cmd.platform != "" && cfg.Platform != "" && cmd.platform != cfg.Platform {
			return nil, configErrorf("", "", "-platform=%s conflicts with platform %q in %s", cmd.platform, cfg.Platform, cmd.configFile)
		}
		if cfg.Platform == "" {
			cfg.Platform = cmd.platform
		}
	} else {
		platform, err := ParsePlatform(cmd.platform)
		if err != nil {
			return nil, err
		}
		cfg = DefaultConfig(platform)
	}
	if cmd.threads > 0 {
		cfg.Threads = cmd.threads
	}
	if cmd.fastingPolicy != "" {
		cfg.FastingPolicy = cmd.fastingPolicy
	}
	return cfg, nil
}

func (cmd *qcCommand) run(ctx context.Context) error {
	cfg, err := cmd.config()
	if err != nil {
		return err
	}
	pipeline, err := NewPipeline(cfg)
	if err != nil {
		return err
	}
	src := &DirSource{Dir: cmd.inputDir, LODDir: cmd.lodDir, FastingFile: cmd.fastingFile}
	if err := attachSideTables(pipeline, cfg, src, cmd.lodDir != ""); err != nil {
		return err
	}
	coll, err := src.Load(pipeline.Platform)
	if err != nil {
		return err
	}
	coll, err = pipeline.Run(ctx, coll)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(cmd.outputDir, 0777); err != nil {
		return err
	}
	var wg WaitGroup
	err = coll.Each(func(t *Table) error {
		wg.Add(1)
		go func() {
			defer wg.Done()
			wg.Error(writeCohort(cmd.outputDir, t, cmd.export))
		}()
		return nil
	})
	if err != nil {
		return err
	}
	if err := wg.Wait(); err != nil {
		return err
	}
	log.Infof("wrote %d cohorts to %s", coll.Len(), cmd.outputDir)
	return nil
}

// attachSideTables loads the side tables the configured steps need.
func attachSideTables(p *Pipeline, cfg *Config, src DataSource, useLOD bool) error {
	lod, fasting, covariates := cfg.Needs()
	var err error
	if lod && useLOD {
		if p.LOD, err = src.LoadLOD(); err != nil {
			return err
		}
	}
	if fasting {
		if p.Fasting, err = src.LoadFasting(); err != nil {
			return err
		}
	}
	if covariates {
		if p.Covariates, err = src.LoadCovariates(); err != nil {
			return err
		}
	}
	return nil
}
