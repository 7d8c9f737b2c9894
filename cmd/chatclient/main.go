package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"marketplace-service/internal/auth"
	"marketplace-service/internal/chatsync"
	"marketplace-service/internal/client"
	"marketplace-service/internal/logging"
	"marketplace-service/internal/models"
	"marketplace-service/internal/signing"
	"marketplace-service/internal/tui"
)

const requestTimeout = 15 * time.Second

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	v := viper.New()
	v.SetEnvPrefix("MARKETPLACE")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	root := &cobra.Command{
		Use:           "chatclient",
		Short:         "Marketplace chat and contract signing from the terminal",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	flags := root.PersistentFlags()
	flags.String("api-url", "http://localhost:8083", "REST API base URL")
	flags.String("ws-url", "ws://localhost:8083/ws", "live channel URL")
	flags.String("token", "", "bearer token")
	flags.String("log-level", "warn", "log level")
	_ = v.BindPFlags(flags)

	root.AddCommand(
		roomsCmd(v),
		createRoomCmd(v),
		sendCmd(v),
		readCmd(v),
		leaveCmd(v),
		chatCmd(v),
		contractCmd(v),
	)
	return root
}

type session struct {
	rest   *client.REST
	store  *chatsync.Store
	me     chatsync.Identity
	logger *logrus.Logger
}

func newSession(v *viper.Viper) (*session, error) {
	token := v.GetString("token")
	if token == "" {
		return nil, errors.New("a token is required (--token or MARKETPLACE_TOKEN)")
	}
	claims, err := auth.PeekClaims(token)
	if err != nil {
		return nil, err
	}
	me := chatsync.Identity{UserID: claims.UserID, UserName: claims.UserName, Role: models.Role(claims.UserRole)}

	logger := logging.New(v.GetString("log-level"))
	logger.SetOutput(os.Stderr)

	rest := client.NewREST(v.GetString("api-url"), token)
	wsURL := v.GetString("ws-url")
	dial := func(ctx context.Context) (chatsync.Channel, error) {
		return client.Dial(ctx, wsURL, client.Handshake{
			Token:    token,
			UserID:   me.UserID,
			UserName: me.UserName,
			UserRole: string(me.Role),
		})
	}
	return &session{
		rest:   rest,
		store:  chatsync.NewStore(rest, dial, me, logger.WithField("component", "chatsync")),
		me:     me,
		logger: logger,
	}, nil
}

// connect opens the live channel; without it commands still work over REST.
func (s *session) connect(ctx context.Context) {
	if err := s.store.Connect(ctx); err != nil {
		s.logger.WithError(err).Debug("live channel unavailable")
	}
}

func roomsCmd(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "rooms",
		Short: "List your rooms",
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := newSession(v)
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), requestTimeout)
			defer cancel()

			if err := s.store.LoadRooms(ctx); err != nil {
				return err
			}
			for _, room := range s.store.Rooms() {
				last := ""
				if room.LastMessage != nil {
					last = room.LastMessage.Content
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\t%d unread\t%s\n", room.ID, chatsync.RoomTitle(room, s.me.UserID), room.UnreadCount, last)
			}
			return nil
		},
	}
}

func createRoomCmd(v *viper.Viper) *cobra.Command {
	var name string
	cmd := &cobra.Command{
		Use:   "create-room PARTICIPANT_ID...",
		Short: "Create a room with the given participants",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := newSession(v)
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), requestTimeout)
			defer cancel()
			s.connect(ctx)
			defer s.store.Disconnect()

			room, err := s.store.CreateRoom(ctx, args, name)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", room.ID, chatsync.RoomTitle(room, s.me.UserID))
			return nil
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "room name")
	return cmd
}

func sendCmd(v *viper.Viper) *cobra.Command {
	var msgType, mimeType string
	cmd := &cobra.Command{
		Use:   "send ROOM_ID CONTENT...",
		Short: "Send a message; file and image types take an uploaded file URL as content",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := newSession(v)
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), requestTimeout)
			defer cancel()
			s.connect(ctx)
			defer s.store.Disconnect()

			roomID, content := args[0], strings.Join(args[1:], " ")
			var msg models.Message
			switch models.MessageType(msgType) {
			case models.MessageText:
				msg, err = s.store.SendMessage(ctx, content, roomID, models.MessageText)
			case models.MessageFile, models.MessageImage:
				msg, err = s.store.SendAttachment(ctx, roomID, chatsync.Attachment{URL: content, MIMEType: mimeType}, models.MessageType(msgType))
			default:
				return fmt.Errorf("unknown message type %q", msgType)
			}
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), msg.ID)
			return nil
		},
	}
	cmd.Flags().StringVar(&msgType, "type", string(models.MessageText), "message type: text, file or image")
	cmd.Flags().StringVar(&mimeType, "mime", "", "MIME type of the attachment")
	return cmd
}

func readCmd(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "read ROOM_ID",
		Short: "Mark a room as read",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := newSession(v)
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), requestTimeout)
			defer cancel()
			s.connect(ctx)
			defer s.store.Disconnect()
			return s.store.MarkAsRead(ctx, args[0])
		},
	}
}

func leaveCmd(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "leave ROOM_ID",
		Short: "Leave a room",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := newSession(v)
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), requestTimeout)
			defer cancel()
			s.connect(ctx)
			defer s.store.Disconnect()
			return s.store.LeaveRoom(ctx, args[0])
		},
	}
}

func chatCmd(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "chat ROOM_ID",
		Short: "Open an interactive chat in a room",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			s, err := newSession(v)
			if err != nil {
				return err
			}
			return tui.Run(s.store, args[0])
		},
	}
}

func contractCmd(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "contract",
		Short: "Inspect and sign contracts",
	}

	show := &cobra.Command{
		Use:   "show CONTRACT_ID",
		Short: "Show a contract and its signatures",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := newSession(v)
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), requestTimeout)
			defer cancel()

			view, err := s.rest.GetContract(ctx, args[0])
			if err != nil {
				return err
			}
			printContract(cmd, view.Contract)
			return nil
		},
	}

	var walletRPC string
	sign := &cobra.Command{
		Use:   "sign CONTRACT_ID",
		Short: "Sign a contract with the wallet behind --wallet-rpc",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := newSession(v)
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), 2*time.Minute)
			defer cancel()

			view, err := s.rest.GetContract(ctx, args[0])
			if err != nil {
				return err
			}
			role, err := signing.RoleFor(view.Contract, s.me.UserID)
			if err != nil {
				return err
			}

			flow := signing.NewFlow(signing.NewRPCWallet(walletRPC, nil), s.rest)
			signed, err := flow.Sign(ctx, view.Contract, signing.Signer{ID: s.me.UserID, Name: s.me.UserName, Role: role})
			if errors.Is(err, signing.ErrWalletNotConnected) {
				fmt.Fprintln(cmd.OutOrStdout(), "Wallet connection requested. Approve it in your wallet and run sign again.")
				return nil
			}
			if err != nil {
				return err
			}
			printContract(cmd, signed)
			return nil
		},
	}
	sign.Flags().StringVar(&walletRPC, "wallet-rpc", "http://localhost:8545", "wallet JSON-RPC endpoint")

	cmd.AddCommand(show, sign)
	return cmd
}

func printContract(cmd *cobra.Command, c models.Contract) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "%s  %s\n", c.ID, c.Title)
	fmt.Fprintf(out, "client: %s  freelancer: %s  value: %.2f %s\n", c.CompanyName, c.FreelancerName, c.Value, c.Currency)
	fmt.Fprintf(out, "signatures: %s", chatsync.SignatureBadge(c))
	if c.FullySigned() {
		fmt.Fprint(out, "  fully signed")
	}
	fmt.Fprintln(out)
	for _, sig := range c.Signatures {
		fmt.Fprintf(out, "  %s  %-10s %s  %s\n", sig.SignedAt.Format(time.RFC3339), sig.Role, sig.SignerName, sig.WalletAddress)
	}
	if c.BlockchainHash != nil {
		fmt.Fprintf(out, "anchor: %s\n", *c.BlockchainHash)
	}
}
