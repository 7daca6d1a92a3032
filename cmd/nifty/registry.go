package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/spf13/cobra"

	"nifty-go/internal/app"
	"nifty-go/internal/model"
	"nifty-go/internal/registry"
)

func parseToken(s string) (model.TokenID, error) {
	t, err := model.ParseTokenID(s)
	if err != nil {
		return 0, fmt.Errorf("invalid token %q: must be a decimal number", s)
	}
	return t, nil
}

func printFile(f *model.FileRecord, url string) {
	folder := f.Folder
	if f.IsUnfiled() {
		folder = "(unfiled)"
	}
	fmt.Printf("#%-6s %-20s %-12s %-24s %s\n", f.Token, folder, f.Owner, f.MimeType, f.DisplayName)
	fmt.Printf("        cid: %s\n", f.ContentID)
	if url != "" {
		fmt.Printf("        url: %s\n", url)
	}
}

// folder command
var folderCmd = &cobra.Command{
	Use:   "folder",
	Short: "Manage folders",
}

var folderCreateCmd = &cobra.Command{
	Use:   "create NAME",
	Short: "Create a folder",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *app.NiftyApp, cred string) error {
			f, err := a.Service().CreateFolder(ctx, cred, args[0])
			if err != nil {
				return err
			}
			fmt.Printf("Created folder %q\n", f.Name)
			return nil
		})
	},
}

var folderRenameCmd = &cobra.Command{
	Use:   "rename OLD NEW",
	Short: "Rename a folder; its files follow",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *app.NiftyApp, cred string) error {
			f, err := a.Service().EditFolder(ctx, cred, args[0], args[1])
			if err != nil {
				return err
			}
			fmt.Printf("Renamed folder %q to %q\n", args[0], f.Name)
			return nil
		})
	},
}

var folderDeleteCmd = &cobra.Command{
	Use:   "delete NAME",
	Short: "Delete a folder and every file in it",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *app.NiftyApp, cred string) error {
			if err := a.Service().DeleteFolder(ctx, cred, args[0]); err != nil {
				return err
			}
			fmt.Printf("Deleted folder %q\n", args[0])
			return nil
		})
	},
}

var folderListCmd = &cobra.Command{
	Use:   "list",
	Short: "List your folders",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *app.NiftyApp, cred string) error {
			folders, err := a.Service().GetUserFolders(ctx, cred)
			if err != nil {
				return err
			}
			if len(folders) == 0 {
				fmt.Println("No folders.")
				return nil
			}
			for _, f := range folders {
				fmt.Printf("%s  %s\n", f.CreatedAt.Local().Format("2006-01-02 15:04:05"), f.Name)
			}
			return nil
		})
	},
}

// file command
var fileCmd = &cobra.Command{
	Use:   "file",
	Short: "Upload and manage files",
}

var fileUploadCmd = &cobra.Command{
	Use:   "upload [PATH]",
	Short: "Upload a file into a folder and mint a token for it",
	Long: "Upload the bytes at PATH into --folder, or register content that is already\n" +
		"in the content store with --cid (PATH is then omitted).",
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		folder, _ := cmd.Flags().GetString("folder")
		name, _ := cmd.Flags().GetString("name")
		mimeType, _ := cmd.Flags().GetString("mime")
		cid, _ := cmd.Flags().GetString("cid")

		req := registry.UploadRequest{
			Folder:      folder,
			DisplayName: name,
			MimeType:    mimeType,
			ContentID:   cid,
		}

		switch {
		case cid != "" && len(args) > 0:
			return fmt.Errorf("give either PATH or --cid, not both")
		case cid != "":
			if req.DisplayName == "" {
				return fmt.Errorf("--name is required with --cid")
			}
		case len(args) == 0:
			return fmt.Errorf("PATH or --cid is required")
		default:
			f, err := os.Open(args[0])
			if err != nil {
				return fmt.Errorf("opening %s: %w", args[0], err)
			}
			defer f.Close()
			info, err := f.Stat()
			if err != nil {
				return fmt.Errorf("stat %s: %w", args[0], err)
			}
			if info.IsDir() {
				return fmt.Errorf("%s is a directory", args[0])
			}
			if req.DisplayName == "" {
				req.DisplayName = filepath.Base(args[0])
			}
			if req.MimeType == "" {
				if m, err := mimetype.DetectFile(args[0]); err == nil {
					req.MimeType = m.String()
				}
			}
			req.Content = f
			req.Size = info.Size()
		}

		return withApp(cmd, func(ctx context.Context, a *app.NiftyApp, cred string) error {
			rec, err := a.Service().UploadFile(ctx, cred, req)
			if err != nil {
				return err
			}
			fmt.Printf("Minted token #%s\n", rec.Token)
			printFile(rec, a.Service().ContentURL(rec.ContentID))
			return nil
		})
	},
}

var fileListCmd = &cobra.Command{
	Use:   "list",
	Short: "List the files you own",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *app.NiftyApp, cred string) error {
			files, err := a.Service().GetUserFiles(ctx, cred)
			if err != nil {
				return err
			}
			if len(files) == 0 {
				fmt.Println("No files.")
				return nil
			}
			for _, f := range files {
				printFile(f, "")
			}
			return nil
		})
	},
}

var fileGetCmd = &cobra.Command{
	Use:   "get TOKEN",
	Short: "Show the record for a token",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		token, err := parseToken(args[0])
		if err != nil {
			return err
		}
		return withApp(cmd, func(ctx context.Context, a *app.NiftyApp, cred string) error {
			rec, err := a.Service().GetFile(ctx, cred, token)
			if err != nil {
				return err
			}
			printFile(rec, a.Service().ContentURL(rec.ContentID))
			return nil
		})
	},
}

var fileMoveCmd = &cobra.Command{
	Use:   "move TOKEN FOLDER",
	Short: "Move one of your files into another of your folders",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		token, err := parseToken(args[0])
		if err != nil {
			return err
		}
		return withApp(cmd, func(ctx context.Context, a *app.NiftyApp, cred string) error {
			rec, err := a.Service().MoveFile(ctx, cred, token, args[1])
			if err != nil {
				return err
			}
			fmt.Printf("Moved #%s to %q\n", rec.Token, rec.Folder)
			return nil
		})
	},
}

var fileCatCmd = &cobra.Command{
	Use:   "cat TOKEN",
	Short: "Write a file's content to stdout",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		token, err := parseToken(args[0])
		if err != nil {
			return err
		}
		return withApp(cmd, func(ctx context.Context, a *app.NiftyApp, cred string) error {
			if a.NeedsPassphrase() {
				pass, err := promptPassword("Passphrase: ")
				if err != nil {
					return err
				}
				if err := a.Unlock(pass); err != nil {
					return err
				}
			}
			_, err := a.Service().ReadContent(ctx, cred, token, os.Stdout)
			return err
		})
	},
}

// token command
var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Transfer tokens and inspect their provenance",
}

var tokenTransferCmd = &cobra.Command{
	Use:   "transfer TOKEN NEW_OWNER",
	Short: "Transfer ownership of a token",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		token, err := parseToken(args[0])
		if err != nil {
			return err
		}
		return withApp(cmd, func(ctx context.Context, a *app.NiftyApp, cred string) error {
			rec, err := a.Service().TransferToken(ctx, cred, token, model.Account(args[1]))
			if err != nil {
				return err
			}
			fmt.Printf("Transferred #%s to %s\n", rec.Token, rec.Owner)
			return nil
		})
	},
}

var tokenHistoryCmd = &cobra.Command{
	Use:   "history TOKEN",
	Short: "Show the ownership history of a token",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		token, err := parseToken(args[0])
		if err != nil {
			return err
		}
		return withApp(cmd, func(ctx context.Context, a *app.NiftyApp, cred string) error {
			entries, err := a.Service().TokenHistory(ctx, cred, token)
			if err != nil {
				return err
			}
			for _, e := range entries {
				from := string(e.From)
				if from == "" {
					from = "(minted)"
				}
				fmt.Printf("%s  %-12s -> %s\n", e.TransferredAt.Local().Format("2006-01-02 15:04:05"), from, e.To)
			}
			return nil
		})
	},
}

// history command
var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "View your operation history",
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")

		return withApp(cmd, func(ctx context.Context, a *app.NiftyApp, cred string) error {
			ops, err := a.Service().GetHistory(ctx, cred, limit)
			if err != nil {
				return err
			}
			if len(ops) == 0 {
				fmt.Println("No operations recorded.")
				return nil
			}
			for _, op := range ops {
				duration := ""
				if op.FinishedAt != nil {
					duration = op.FinishedAt.Sub(op.StartedAt).Truncate(time.Millisecond).String()
				}
				fmt.Printf("#%d  %-16s  %s  %-21s  %-8s  %s\n",
					op.ID,
					op.Operation,
					op.StartedAt.Local().Format("2006-01-02 15:04:05"),
					op.Status,
					duration,
					op.Parameters,
				)
			}
			return nil
		})
	},
}

// tree command
var treeCmd = &cobra.Command{
	Use:   "tree",
	Short: "Show your folders and files as a tree",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *app.NiftyApp, cred string) error {
			ns, err := a.Service().GetNamespace(ctx, cred)
			if err != nil {
				return err
			}
			fmt.Print(renderNamespace(ns))
			return nil
		})
	},
}

func init() {
	folderCmd.AddCommand(folderCreateCmd)
	folderCmd.AddCommand(folderRenameCmd)
	folderCmd.AddCommand(folderDeleteCmd)
	folderCmd.AddCommand(folderListCmd)

	fileCmd.AddCommand(fileUploadCmd)
	fileUploadCmd.Flags().StringP("folder", "f", "", "Destination folder")
	fileUploadCmd.Flags().StringP("name", "n", "", "Display name (default: file name)")
	fileUploadCmd.Flags().String("mime", "", "MIME type (default: detected from content)")
	fileUploadCmd.Flags().String("cid", "", "Register existing content by id instead of uploading")
	fileUploadCmd.MarkFlagRequired("folder")
	fileCmd.AddCommand(fileListCmd)
	fileCmd.AddCommand(fileGetCmd)
	fileCmd.AddCommand(fileMoveCmd)
	fileCmd.AddCommand(fileCatCmd)

	tokenCmd.AddCommand(tokenTransferCmd)
	tokenCmd.AddCommand(tokenHistoryCmd)

	historyCmd.Flags().IntP("limit", "n", 50, "Maximum number of operations to show")

	rootCmd.AddCommand(folderCmd)
	rootCmd.AddCommand(fileCmd)
	rootCmd.AddCommand(tokenCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(treeCmd)
}
