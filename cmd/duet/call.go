package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Wyydra/duet/internal/core/domain"
	"github.com/Wyydra/duet/internal/core/service"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/spf13/cobra"
)

const hangUpTimeout = 5 * time.Second

var createCmd = &cobra.Command{
	Use:     "create",
	Aliases: []string{"c"},
	Short:   "Create a room and wait for someone to join",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		calls, err := newCallService()
		if err != nil {
			return err
		}
		defer hangUp(calls)

		stop := runSpinner("Creating room...", spinner.Globe, 180*time.Millisecond)
		id, err := calls.CreateRoom(ctx)
		stop()
		if err != nil {
			return err
		}

		fmt.Println()
		fmt.Println(roomInfoView(id.String(), cfg.ServerURL))
		fmt.Println()

		stop = runSpinner("Waiting for someone to join...", spinner.Points, 100*time.Millisecond)
		select {
		case <-calls.Connected():
			stop()
		case err := <-calls.Failed():
			stop()
			return err
		case <-ctx.Done():
			stop()
			printInfo("Cancelled, removing room")
			return nil
		}

		return inCall(ctx, calls)
	},
}

var joinCmd = &cobra.Command{
	Use:     "join <room-id>",
	Aliases: []string{"j"},
	Short:   "Join a room created by someone else",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		id, err := domain.ParseRoomID(args[0])
		if err != nil {
			return err
		}

		calls, err := newCallService()
		if err != nil {
			return err
		}
		defer hangUp(calls)

		stop := runSpinner("Joining room "+id.String()+"...", spinner.Globe, 180*time.Millisecond)
		err = calls.JoinRoom(ctx, id)
		stop()
		switch {
		case errors.Is(err, domain.ErrRoomNotFound):
			return fmt.Errorf("room %s does not exist", id)
		case errors.Is(err, domain.ErrRoomAlreadyAnswered):
			return fmt.Errorf("room %s already has two participants", id)
		case errors.Is(err, domain.ErrRoomNotReady):
			return fmt.Errorf("room %s has no offer yet, try again in a moment", id)
		case err != nil:
			return err
		}

		return inCall(ctx, calls)
	},
}

// inCall reports the peer's media until the user hangs up.
func inCall(ctx context.Context, calls *service.CallService) error {
	printSuccess(fmt.Sprintf("Connected in room %s", calls.RoomID()))
	printInfo("Press Ctrl+C to hang up")

	tracks := calls.RemoteTracks()
	for {
		select {
		case <-ctx.Done():
			return nil
		case t, ok := <-tracks:
			if !ok {
				tracks = nil
				continue
			}
			printInfo(fmt.Sprintf("Receiving %s from peer (stream %s)", t.Kind, t.StreamID))
		}
	}
}

func hangUp(calls *service.CallService) {
	ctx, cancel := context.WithTimeout(context.Background(), hangUpTimeout)
	defer cancel()
	calls.HangUp(ctx)
}

func init() {
	rootCmd.AddCommand(createCmd)
	rootCmd.AddCommand(joinCmd)
}
