package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"dm-relay/internal/config"
	"dm-relay/internal/usecase"
)

func newSendCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "send",
		Short: "Send a text or image message to a recipient through the Graph API",
		RunE: func(cmd *cobra.Command, args []string) error {
			to, _ := cmd.Flags().GetString("to")
			text, _ := cmd.Flags().GetString("text")
			image, _ := cmd.Flags().GetString("image")
			to, text, image = strings.TrimSpace(to), strings.TrimSpace(text), strings.TrimSpace(image)

			if to == "" {
				return errors.New("missing --to")
			}
			if (text == "") == (image == "") {
				return errors.New("exactly one of --text or --image is required")
			}

			cfg := config.Load()
			if strings.TrimSpace(cfg.PageAccessToken) == "" {
				return errors.New("config: missing required environment variables: PAGE_ACCESS_TOKEN")
			}
			log, err := setupLogger(cfg)
			if err != nil {
				return err
			}
			graphClient, err := newGraphClient(cfg)
			if err != nil {
				return err
			}
			relay, err := usecase.NewRelay(graphClient, log)
			if err != nil {
				return err
			}

			if text != "" {
				err = relay.SendText(cmd.Context(), to, text)
			} else {
				err = relay.SendImage(cmd.Context(), to, image)
			}
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), "sent")
			return nil
		},
	}

	cmd.Flags().String("to", "", "Recipient ID.")
	cmd.Flags().String("text", "", "Text message to send.")
	cmd.Flags().String("image", "", "Public image URL to send.")
	return cmd
}
