package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"reel/internal/codec"
)

func newCodecsCommand() *cobra.Command {
	return &cobra.Command{
		Use:         "codecs",
		Short:       "List supported output codecs",
		Args:        cobra.NoArgs,
		Annotations: map[string]string{"skipConfigLoad": "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Fprintln(cmd.OutOrStdout(), renderCodecTable(codec.All()))
			return nil
		},
	}
}

func renderCodecTable(specs []codec.Spec) string {
	title := cases.Title(language.English)
	rows := make([][]string, 0, len(specs))
	for _, spec := range specs {
		crf := "-"
		if spec.SupportsCRF() {
			crf = fmt.Sprintf("%d (%d-%d)", spec.DefaultCRF, spec.MinCRF, spec.MaxCRF)
		}
		audio := "-"
		if spec.SupportsAudio() {
			audio = spec.AudioCodec
		}
		encoder := spec.Encoder
		if encoder == "" {
			encoder = "-"
		}
		rows = append(rows, []string{
			string(spec.ID),
			title.String(kindName(spec.Kind)),
			spec.Extension,
			encoder,
			audio,
			crf,
			yesNo(spec.Bitrate),
		})
	}
	return renderTable(
		[]string{"Codec", "Output", "Ext", "Encoder", "Audio", "CRF", "Bitrate"},
		rows,
		[]columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft, alignLeft, alignRight, alignLeft},
	)
}

func kindName(kind codec.Kind) string {
	switch kind {
	case codec.KindPalette:
		return "palette"
	case codec.KindSequence:
		return "image sequence"
	case codec.KindAV1:
		return "drapto encode"
	default:
		return "video"
	}
}
