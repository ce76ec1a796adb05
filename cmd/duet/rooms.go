package main

import (
	"fmt"
	"os"
	"time"

	"github.com/Wyydra/duet/internal/core/domain"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

var roomsCmd = &cobra.Command{
	Use:     "rooms",
	Aliases: []string{"ls"},
	Short:   "List the rooms held by the server",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openStore()
		if err != nil {
			return err
		}
		rooms, err := store.ListRooms(cmd.Context())
		if err != nil {
			return err
		}
		if len(rooms) == 0 {
			fmt.Println(mutedStyle.Render("No rooms"))
			return nil
		}
		renderRooms(rooms, time.Now())
		return nil
	},
}

var rmCmd = &cobra.Command{
	Use:   "rm <room-id>...",
	Short: "Delete rooms and their candidates",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openStore()
		if err != nil {
			return err
		}
		for _, arg := range args {
			id, err := domain.ParseRoomID(arg)
			if err != nil {
				return err
			}
			if err := store.DeleteRoom(cmd.Context(), id); err != nil {
				return err
			}
			printSuccess("Deleted room " + id.String())
		}
		return nil
	},
}

func roomStatus(r domain.Room) string {
	switch {
	case r.HasAnswer():
		return "in call"
	case r.HasOffer():
		return "waiting"
	default:
		return "empty"
	}
}

func renderRooms(rooms []domain.Room, now time.Time) {
	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.SetStyle(table.StyleRounded)
	t.AppendHeader(table.Row{"#", "Room", "Status", "Age"})
	for i, r := range rooms {
		t.AppendRow(table.Row{i + 1, r.ID, roomStatus(r), now.Sub(r.CreatedAt).Round(time.Second)})
	}
	t.Render()
}

func init() {
	rootCmd.AddCommand(roomsCmd)
	rootCmd.AddCommand(rmCmd)
}
