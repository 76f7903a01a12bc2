package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/kalambet/soullink/internal/config"
)

// --- persona ---

var personaCmd = &cobra.Command{
	Use:   "persona",
	Short: "Manage personas",
}

var personaListCmd = &cobra.Command{
	Use:   "list",
	Short: "List defined personas",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.get(cmd.Context(), "/personas/")
		if err != nil {
			return err
		}

		var personas []struct {
			ID          string `json:"id"`
			Name        string `json:"name"`
			Nickname    string `json:"nickname"`
			Description string `json:"description"`
		}
		if err := decodeJSON(resp, &personas); err != nil {
			return err
		}

		if len(personas) == 0 {
			fmt.Println("No personas defined.")
			return nil
		}

		for _, p := range personas {
			name := p.Nickname
			if name == "" {
				name = p.Name
			}
			desc := p.Description
			if len(desc) > 60 {
				desc = desc[:60] + "..."
			}
			fmt.Printf("%s  %s  %s\n", colorize(colorCyan, p.ID), colorize(colorBold, name), desc)
		}
		return nil
	},
}

var personaImportCmd = &cobra.Command{
	Use:   "import <card>",
	Short: "Import a character card (PNG or JSON)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := os.ReadFile(args[0])
		if err != nil {
			return fmt.Errorf("reading card: %w", err)
		}

		contentType := "application/json"
		if strings.EqualFold(filepath.Ext(args[0]), ".png") {
			contentType = "image/png"
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.postRaw(cmd.Context(), "/personas/import", data, contentType)
		if err != nil {
			return err
		}

		var persona struct {
			ID       string `json:"id"`
			Name     string `json:"name"`
			Nickname string `json:"nickname"`
		}
		if err := decodeJSON(resp, &persona); err != nil {
			return err
		}

		name := persona.Nickname
		if name == "" {
			name = persona.Name
		}
		printSuccess("Imported persona %s (%s)", name, persona.ID)
		return nil
	},
}

func init() {
	personaCmd.AddCommand(personaListCmd)
	personaCmd.AddCommand(personaImportCmd)
}

// --- chat ---

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Talk to a persona, group, or quick chat",
}

var chatSendCmd = &cobra.Command{
	Use:   "send <kind> <id> <text...>",
	Short: "Send a message to a surface",
	Long: `Send a message to a surface.

Examples:
  soullink chat send character p1 "早上好"
  soullink chat send group g1 "大家周末有空吗"`,
	Args: cobra.MinimumNArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		kind, id := args[0], args[1]
		text := strings.Join(args[2:], " ")

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		path := fmt.Sprintf("/chat/%s/%s/messages", kind, id)
		resp, err := client.post(cmd.Context(), path, map[string]any{"text": text})
		if err != nil {
			return err
		}

		var msg struct {
			ID int64 `json:"id"`
		}
		if err := decodeJSON(resp, &msg); err != nil {
			return err
		}

		printSuccess("Sent message %d — replies arrive asynchronously, see `soullink chat history`", msg.ID)
		return nil
	},
}

var chatHistoryCmd = &cobra.Command{
	Use:   "history <kind> <id>",
	Short: "Show the visible history of a surface",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		path := fmt.Sprintf("/chat/%s/%s/messages", args[0], args[1])
		resp, err := client.get(cmd.Context(), path)
		if err != nil {
			return err
		}

		var history []struct {
			Sender     string `json:"sender"`
			SenderName string `json:"senderName"`
			Kind       string `json:"kind"`
			Text       string `json:"text"`
			IsRecalled bool   `json:"isRecalled"`
		}
		if err := decodeJSON(resp, &history); err != nil {
			return err
		}

		if limit > 0 && len(history) > limit {
			history = history[len(history)-limit:]
		}
		if len(history) == 0 {
			fmt.Println("No messages yet.")
			return nil
		}

		for _, m := range history {
			name := m.SenderName
			if name == "" {
				if m.Sender == "user" {
					name = "我"
				} else {
					name = m.Sender
				}
			}
			text := m.Text
			if m.IsRecalled {
				text = colorize(colorYellow, text)
			}
			if m.Kind != "text" && m.Kind != "" {
				text = fmt.Sprintf("[%s] %s", m.Kind, text)
			}
			fmt.Printf("%s  %s\n", colorize(colorBold, name+":"), text)
		}
		return nil
	},
}

func init() {
	chatHistoryCmd.Flags().Int("limit", 0, "show only the last N messages")
	chatCmd.AddCommand(chatSendCmd)
	chatCmd.AddCommand(chatHistoryCmd)
}

// --- pet ---

var petCmd = &cobra.Command{
	Use:   "pet",
	Short: "Check on and care for the pixel pet",
}

var petStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the pet's current state",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.get(cmd.Context(), "/pet")
		if err != nil {
			return err
		}

		var state struct {
			Name   string  `json:"name"`
			Emoji  string  `json:"emoji"`
			Energy float64 `json:"energy"`
			Hunger float64 `json:"hunger"`
			Mood   float64 `json:"mood"`
		}
		if err := decodeJSON(resp, &state); err != nil {
			return err
		}

		printStatus("Pet", "%s %s", state.Emoji, state.Name)
		printStatus("Energy", "%.0f", state.Energy)
		printStatus("Hunger", "%.0f", state.Hunger)
		printStatus("Mood", "%.0f", state.Mood)
		return nil
	},
}

func petInteractCmd(action, short string) *cobra.Command {
	return &cobra.Command{
		Use:   action,
		Short: short,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := newAPIClient()
			if err != nil {
				return err
			}

			resp, err := client.post(cmd.Context(), "/pet/interact", map[string]string{"action": action})
			if err != nil {
				return err
			}

			var result struct {
				Reaction string `json:"reaction"`
			}
			if err := decodeJSON(resp, &result); err != nil {
				return err
			}

			fmt.Println(result.Reaction)
			return nil
		},
	}
}

func init() {
	petCmd.AddCommand(petStatusCmd)
	petCmd.AddCommand(petInteractCmd("feed", "Feed the pet"))
	petCmd.AddCommand(petInteractCmd("play", "Play with the pet"))
	petCmd.AddCommand(petInteractCmd("rest", "Put the pet to rest"))
}

// --- feed ---

var feedCmd = &cobra.Command{
	Use:   "feed",
	Short: "Browse the social feed",
}

var feedListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recent feed posts",
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.get(cmd.Context(), "/feed/")
		if err != nil {
			return err
		}

		var posts []struct {
			ID         int64  `json:"id"`
			AuthorID   string `json:"authorId"`
			Content    string `json:"content"`
			PublicText string `json:"publicText"`
			Likes      []any  `json:"likes"`
			Comments   []any  `json:"comments"`
		}
		if err := decodeJSON(resp, &posts); err != nil {
			return err
		}

		if limit > 0 && len(posts) > limit {
			posts = posts[:limit]
		}
		if len(posts) == 0 {
			fmt.Println("The feed is empty.")
			return nil
		}

		for _, p := range posts {
			text := p.Content
			if text == "" {
				text = p.PublicText
			}
			if len(text) > 120 {
				text = text[:120] + "..."
			}
			fmt.Printf("%s  %s\n", colorize(colorCyan, fmt.Sprintf("#%d", p.ID)), text)
			fmt.Printf("    %s\n", colorize(colorBold, fmt.Sprintf("♥ %d  💬 %d", len(p.Likes), len(p.Comments))))
		}
		return nil
	},
}

var feedPostCmd = &cobra.Command{
	Use:   "post <text...>",
	Short: "Publish a post to the feed",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		body := map[string]any{
			"type":    "text",
			"content": strings.Join(args, " "),
		}
		resp, err := client.post(cmd.Context(), "/feed/", body)
		if err != nil {
			return err
		}

		var post struct {
			ID int64 `json:"id"`
		}
		if err := decodeJSON(resp, &post); err != nil {
			return err
		}

		printSuccess("Posted #%d", post.ID)
		return nil
	},
}

func init() {
	feedListCmd.Flags().Int("limit", 10, "maximum number of posts")
	feedCmd.AddCommand(feedListCmd)
	feedCmd.AddCommand(feedPostCmd)
}

// --- config ---

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or update configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}

		keys := config.ShowAll(cfg)
		for _, k := range keys {
			fmt.Printf("  %s = %s\n", colorize(colorBold, k.Key), k.Value)
		}
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, value := args[0], args[1]

		if err := config.SetKey(key, value); err != nil {
			return err
		}

		printSuccess("Set %s = %s", key, value)
		return nil
	},
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
}
