// Copyright 2023 - 2025, VnPower and the PixivFE contributors
// SPDX-License-Identifier: AGPL-3.0-only

package main

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/rs/zerolog/log"

	"codeberg.org/pixivfe/tagbridge/config"
	"codeberg.org/pixivfe/tagbridge/core/annotator"
)

// watchFile keeps the page at inPath live: the annotator runs its debounced
// and periodic scans over it, edits of the file are applied to the live page
// as mutations, and the annotated page is rewritten to outPath whenever it
// changes. It returns once ctx is done.
func watchFile(
	ctx context.Context,
	translator annotator.TagTranslator,
	cfg *config.Config,
	inPath, outPath string,
) error {
	source, err := os.ReadFile(inPath) // #nosec G304 -- path given on the command line
	if err != nil {
		return fmt.Errorf("failed to read page: %w", err)
	}

	page, err := annotator.ParsePage(bytes.NewReader(source))
	if err != nil {
		return err
	}

	a := annotator.New(page, translator, annotatorOptions(cfg))
	a.SetEnabled(cfg.Annotator.Enabled)
	a.Start(ctx)
	defer a.Stop()

	log.Info().Str("page", inPath).Str("out", outPath).Msg("Watching page")

	ticker := time.NewTicker(cfg.Annotator.ScanInterval)
	defer ticker.Stop()

	var written []byte

	for {
		select {
		case <-ctx.Done():
			a.Stop()

			_, err := writeIfChanged(page, outPath, written)

			return err
		case <-ticker.C:
			current, err := os.ReadFile(inPath) // #nosec G304
			if err != nil {
				log.Warn().Err(err).Str("page", inPath).Msg("Failed to reread page")
			} else if !bytes.Equal(current, source) {
				source = current

				if err := replaceBody(page, current); err != nil {
					log.Warn().Err(err).Str("page", inPath).Msg("Ignoring unparsable page")
				}
			}

			if written, err = writeIfChanged(page, outPath, written); err != nil {
				return err
			}
		}
	}
}

// replaceBody swaps the body of page for the body of source. Observers see it
// as one mutation.
func replaceBody(page *annotator.Page, source []byte) error {
	fresh, err := goquery.NewDocumentFromReader(bytes.NewReader(source))
	if err != nil {
		return fmt.Errorf("failed to parse page: %w", err)
	}

	page.Mutate(func(doc *goquery.Document) *goquery.Selection {
		body := doc.Find("body")
		body.Empty()
		body.AppendSelection(fresh.Find("body").Contents())

		return body
	})

	return nil
}

// writeIfChanged renders page to path unless the rendering equals last, and
// returns what is now on disk.
func writeIfChanged(page *annotator.Page, path string, last []byte) ([]byte, error) {
	var buf bytes.Buffer

	if err := page.Render(&buf); err != nil {
		return last, err
	}

	if last != nil && bytes.Equal(buf.Bytes(), last) {
		return last, nil
	}

	tmp := path + ".tmp"

	if err := os.WriteFile(tmp, buf.Bytes(), outputFilePermissions); err != nil {
		return last, fmt.Errorf("failed to write output file: %w", err)
	}

	if err := os.Rename(tmp, path); err != nil {
		return last, fmt.Errorf("failed to replace output file: %w", err)
	}

	log.Debug().Str("out", path).Int("bytes", buf.Len()).Msg("Wrote annotated page")

	return buf.Bytes(), nil
}
