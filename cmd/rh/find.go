package main

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/rockhoundapp/rockhound/internal/ids"
	"github.com/rockhoundapp/rockhound/internal/model"
	"github.com/rockhoundapp/rockhound/internal/session"
	"github.com/rockhoundapp/rockhound/internal/store"
)

var findCmd = &cobra.Command{
	Use:   "find",
	Short: "Manage catalogued finds",
}

var (
	addLat, addLong       float64
	addHasLat, addHasLong bool
	addLabel, addNote     string
	addCategory           string
	addUnlinked           bool
)

var findAddCmd = &cobra.Command{
	Use:   "add <photo-file>",
	Short: "Capture a new find from a photo file",
	Long: `Copy the photo into the photo store, insert a draft find, and link
it to the active session (if any, unless --unlinked).`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := openApp(ctx)
		if err != nil {
			return err
		}
		defer a.close()

		data, err := os.ReadFile(args[0])
		if err != nil {
			return fmt.Errorf("failed to read photo: %w", err)
		}

		path, err := a.photos.Write(data, filepath.Ext(args[0]))
		if err != nil {
			return err
		}

		find := &model.Find{
			ID:        ids.New("find"),
			PhotoURI:  path,
			Timestamp: time.Now().UTC(),
			Status:    model.StatusDraft,
		}
		if addHasLat {
			find.Lat = &addLat
		}
		if addHasLong {
			find.Long = &addLong
		}
		if addLabel != "" {
			find.Label = &addLabel
		}
		if addNote != "" {
			find.Note = &addNote
		}
		if addCategory != "" {
			find.Category = &addCategory
		}

		if err := a.store.InsertFind(ctx, find); err != nil {
			return err
		}

		mgr := session.NewManager(a.store, a.photos, a.logger("session"))
		if !addUnlinked {
			active, err := mgr.Active(ctx)
			if err != nil {
				return err
			}
			if active != nil {
				if err := mgr.Link(ctx, find.ID, active.ID); err != nil {
					return err
				}
				fmt.Printf("Added find %s to session %s\n", find.ID, active.Name)
				return nil
			}
		}

		fmt.Printf("Added find %s\n", find.ID)
		return nil
	},
}

var (
	listSession  string
	listUnlinked bool
	listStatus   string
)

var findListCmd = &cobra.Command{
	Use:   "list",
	Short: "List finds, newest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := openApp(ctx)
		if err != nil {
			return err
		}
		defer a.close()

		filter := store.FindFilter{Status: model.FindStatus(listStatus)}
		if listUnlinked {
			filter.BySession = true
		} else if listSession != "" {
			filter.BySession = true
			filter.SessionID = listSession
		}

		finds, err := a.store.ListFinds(ctx, filter)
		if err != nil {
			return err
		}

		if len(finds) == 0 {
			fmt.Println("No finds.")
			return nil
		}
		for _, f := range finds {
			label := "(unlabeled)"
			if f.Label != nil {
				label = *f.Label
			}
			marker := " "
			if f.Favorite {
				marker = "*"
			}
			fmt.Printf("%s %-26s %-20s %-12s %s\n",
				marker, f.ID, label, f.Status, f.Timestamp.Format("2006-01-02 15:04"))
		}
		return nil
	},
}

var findShowCmd = &cobra.Command{
	Use:   "show <find-id>",
	Short: "Show one find in detail",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := openApp(ctx)
		if err != nil {
			return err
		}
		defer a.close()

		f, err := a.store.GetFind(ctx, args[0])
		if err != nil {
			return err
		}

		fmt.Printf("ID:        %s\n", f.ID)
		fmt.Printf("Photo:     %s\n", f.PhotoURI)
		fmt.Printf("Captured:  %s\n", f.Timestamp.Format(time.RFC3339))
		fmt.Printf("Status:    %s\n", f.Status)
		fmt.Printf("Synced:    %v\n", f.Synced)
		if f.Lat != nil && f.Long != nil {
			fmt.Printf("Location:  %.5f, %.5f\n", *f.Lat, *f.Long)
		}
		if f.Label != nil {
			fmt.Printf("Label:     %s\n", *f.Label)
		}
		if f.Category != nil {
			fmt.Printf("Category:  %s\n", *f.Category)
		}
		if f.Note != nil {
			fmt.Printf("Note:      %s\n", *f.Note)
		}
		if f.SessionID != nil {
			fmt.Printf("Session:   %s\n", *f.SessionID)
		}
		if f.AIData != nil {
			fmt.Printf("AI:        %s (%.0f%% confidence, %s, run %s)\n",
				f.AIData.Result.BestGuess.Label,
				f.AIData.Result.BestGuess.Confidence*100,
				f.AIData.Model, f.AIData.RunID)
		}
		return nil
	},
}

var (
	noteText     string
	noteLabel    string
	noteCategory string
)

var findNoteCmd = &cobra.Command{
	Use:   "note <find-id>",
	Short: "Annotate a find",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := openApp(ctx)
		if err != nil {
			return err
		}
		defer a.close()

		patch := model.FindPatch{}
		if cmd.Flags().Changed("text") {
			patch.Note = &noteText
		}
		if cmd.Flags().Changed("label") {
			patch.Label = &noteLabel
		}
		if cmd.Flags().Changed("category") {
			patch.Category = &noteCategory
		}
		if patch.IsEmpty() {
			fmt.Println("Nothing to update.")
			return nil
		}

		if err := a.store.UpdateFind(ctx, args[0], patch); err != nil {
			return err
		}
		fmt.Printf("Updated find %s\n", args[0])
		return nil
	},
}

var findFavoriteCmd = &cobra.Command{
	Use:   "favorite <find-id>",
	Short: "Toggle a find's favorite flag",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := openApp(ctx)
		if err != nil {
			return err
		}
		defer a.close()

		f, err := a.store.GetFind(ctx, args[0])
		if err != nil {
			return err
		}

		fav := !f.Favorite
		if err := a.store.UpdateFind(ctx, f.ID, model.FindPatch{Favorite: &fav}); err != nil {
			return err
		}
		if fav {
			fmt.Printf("Favorited %s\n", f.ID)
		} else {
			fmt.Printf("Unfavorited %s\n", f.ID)
		}
		return nil
	},
}

var findDeleteCmd = &cobra.Command{
	Use:   "delete <find-id>",
	Short: "Delete a find, its queue entries and its photo",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := openApp(ctx)
		if err != nil {
			return err
		}
		defer a.close()

		mgr := session.NewManager(a.store, a.photos, a.logger("session"))
		if err := mgr.DeleteFind(ctx, args[0]); err != nil {
			return err
		}
		fmt.Printf("Deleted find %s\n", args[0])
		return nil
	},
}

func init() {
	findAddCmd.Flags().Float64Var(&addLat, "lat", 0, "latitude")
	findAddCmd.Flags().Float64Var(&addLong, "long", 0, "longitude")
	findAddCmd.Flags().StringVar(&addLabel, "label", "", "initial label")
	findAddCmd.Flags().StringVar(&addNote, "note", "", "initial note")
	findAddCmd.Flags().StringVar(&addCategory, "category", "", "category")
	findAddCmd.Flags().BoolVar(&addUnlinked, "unlinked", false, "do not link to the active session")
	findAddCmd.PreRun = func(cmd *cobra.Command, args []string) {
		addHasLat = cmd.Flags().Changed("lat")
		addHasLong = cmd.Flags().Changed("long")
	}

	findListCmd.Flags().StringVar(&listSession, "session", "", "only finds of this session")
	findListCmd.Flags().BoolVar(&listUnlinked, "unlinked", false, "only finds with no session")
	findListCmd.Flags().StringVar(&listStatus, "status", "all", "filter by status")

	findNoteCmd.Flags().StringVar(&noteText, "text", "", "note text")
	findNoteCmd.Flags().StringVar(&noteLabel, "label", "", "label")
	findNoteCmd.Flags().StringVar(&noteCategory, "category", "", "category")

	findCmd.AddCommand(findAddCmd)
	findCmd.AddCommand(findListCmd)
	findCmd.AddCommand(findShowCmd)
	findCmd.AddCommand(findNoteCmd)
	findCmd.AddCommand(findFavoriteCmd)
	findCmd.AddCommand(findDeleteCmd)
}
