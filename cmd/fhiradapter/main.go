/*
 * Copyright 2023 The RuleGo Authors.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rulego/fhiradapter/internal/app"
	"github.com/rulego/fhiradapter/internal/config"
	"github.com/spf13/cobra"
)

const version = "1.0.0"

// RootOptions 全局参数
type RootOptions struct {
	ConfigFile string
	EnvFile    string
}

func main() {
	if err := NewRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

// NewRootCommand creates the fhiradapter command.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}
	cmd := &cobra.Command{
		Use:     "fhiradapter",
		Short:   "FHIR to tracker adapter",
		Long:    "Transforms resources of FHIR servers into tracked entities, enrollments and events of a tracker and back.",
		Version: version,
	}
	cmd.PersistentFlags().StringVarP(&opts.ConfigFile, "config", "c", "", "ini configuration file")
	cmd.PersistentFlags().StringVar(&opts.EnvFile, "env", "", "environment file, defaults to .env when present")

	cmd.AddCommand(NewServeCommand(opts))
	cmd.AddCommand(NewTransformCommand(opts))
	cmd.AddCommand(NewValidateCommand(opts))
	return cmd
}

// NewServeCommand runs the webhook and the queue until interrupted.
func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:          "serve",
		Short:        "Receive change notifications and transform the changed resources",
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := config.Load(rootOpts.ConfigFile, rootOpts.EnvFile)
			if err != nil {
				return err
			}
			logger := c.NewLogger()
			logger.Printf("use config file=%s", rootOpts.ConfigFile)
			a, err := app.New(cmd.Context(), c, logger)
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return a.Serve(ctx)
		},
	}
}

// NewTransformCommand imports FHIR resource files once.
func NewTransformCommand(rootOpts *RootOptions) *cobra.Command {
	var clientResourceID string
	cmd := &cobra.Command{
		Use:          "transform <file>...",
		Short:        "Transform FHIR resource files as if the client resource had delivered them",
		Args:         cobra.MinimumNArgs(1),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := config.Load(rootOpts.ConfigFile, rootOpts.EnvFile)
			if err != nil {
				return err
			}
			a, err := app.New(cmd.Context(), c, c.NewLogger())
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			for _, file := range args {
				n, err := a.ImportFile(cmd.Context(), clientResourceID, file)
				if err != nil {
					return fmt.Errorf("%s: %w", file, err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s: saved %d tracker resources\n", file, n)
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&clientResourceID, "client-resource", "r", "", "id of the delivering client resource")
	_ = cmd.MarkFlagRequired("client-resource")
	return cmd
}

// NewValidateCommand checks the configuration and the mapping file.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:          "validate",
		Short:        "Check the configuration and the mapping metadata",
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := config.Load(rootOpts.ConfigFile, rootOpts.EnvFile)
			if err != nil {
				return err
			}
			a, err := app.New(cmd.Context(), c, c.NewLogger())
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()
			fmt.Fprintf(cmd.OutOrStdout(), "%s is valid: %d client resources\n", c.MappingFile, len(a.Repo.ClientResources()))
			return nil
		},
	}
}
