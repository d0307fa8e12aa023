// Copyright 2023 - 2025, VnPower and the PixivFE contributors
// SPDX-License-Identifier: AGPL-3.0-only

package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/goccy/go-yaml"
	"github.com/rs/zerolog/log"

	"codeberg.org/pixivfe/tagbridge/config"
	"codeberg.org/pixivfe/tagbridge/core/annotator"
	"codeberg.org/pixivfe/tagbridge/core/translation"
)

const outputFilePermissions = 0o644

// printTranslations translates tags and writes the result as YAML, keyed by
// the tags as given.
func printTranslations(ctx context.Context, translator *translation.Translator, tags []string, w io.Writer) error {
	results, err := translator.TranslateTags(ctx, tags)
	if err != nil {
		return fmt.Errorf("failed to translate tags: %w", err)
	}

	out, err := yaml.MarshalWithOptions(results, yaml.UseLiteralStyleIfMultiline(true))
	if err != nil {
		return fmt.Errorf("failed to encode translations: %w", err)
	}

	if _, err := w.Write(out); err != nil {
		return fmt.Errorf("failed to write translations: %w", err)
	}

	return nil
}

// annotateFile annotates the recommended tags of the page at inPath once and
// writes the page to outPath, or to stdout when outPath is empty.
func annotateFile(
	ctx context.Context,
	translator annotator.TagTranslator,
	cfg *config.Config,
	inPath, outPath string,
	stdout io.Writer,
) error {
	in, err := os.Open(inPath) // #nosec G304 -- path given on the command line
	if err != nil {
		return fmt.Errorf("failed to open page: %w", err)
	}
	defer in.Close()

	page, err := annotator.ParsePage(in)
	if err != nil {
		return err
	}

	a := annotator.New(page, translator, annotatorOptions(cfg))
	a.SetEnabled(cfg.Annotator.Enabled)

	started := a.Scan(ctx)
	a.Wait()

	log.Info().Int("controls", started).Str("page", inPath).Msg("Annotated page")

	if outPath == "" {
		return page.Render(stdout)
	}

	out, err := os.OpenFile(outPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, outputFilePermissions) // #nosec G304
	if err != nil {
		return fmt.Errorf("failed to create output file: %w", err)
	}

	if err := page.Render(out); err != nil {
		_ = out.Close()

		return err
	}

	if err := out.Close(); err != nil {
		return fmt.Errorf("failed to write output file: %w", err)
	}

	return nil
}

func annotatorOptions(cfg *config.Config) annotator.Options {
	return annotator.Options{
		Selector:     cfg.Annotator.Selector,
		Debounce:     cfg.Annotator.Debounce,
		ScanInterval: cfg.Annotator.ScanInterval,
		WikiBaseURL:  cfg.Directory.BaseURL,
	}
}
