package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/mohammad-safakhou/wxbrief/internal/favorites"
	"github.com/mohammad-safakhou/wxbrief/internal/render"
)

func favoritesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "favorites",
		Aliases: []string{"fav"},
		Short:   "Manage saved places",
	}
	cmd.AddCommand(favAddCmd(), favRemoveCmd(), favListCmd())
	return cmd
}

func favStore() (*favorites.Store, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	return favorites.NewStore(cfg.Privacy.StateDir), nil
}

func favAddCmd() *cobra.Command {
	var lat, lon float64

	cmd := &cobra.Command{
		Use:   "add <name> <place>",
		Short: "Save a place under a short name",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			favs, err := favStore()
			if err != nil {
				return err
			}
			f := favorites.Favorite{
				Name:  args[0],
				Place: strings.Join(args[1:], " "),
				Lat:   lat,
				Lon:   lon,
			}
			if err := favs.Add(f); err != nil {
				return err
			}
			fmt.Printf("saved %s -> %s\n", f.Name, f.Place)
			return nil
		},
	}
	cmd.Flags().Float64Var(&lat, "lat", 0, "pin the latitude, skipping geocoding")
	cmd.Flags().Float64Var(&lon, "lon", 0, "pin the longitude, skipping geocoding")
	return cmd
}

func favRemoveCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "rm <name>",
		Aliases: []string{"remove"},
		Short:   "Remove a saved place",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			favs, err := favStore()
			if err != nil {
				return err
			}
			removed, err := favs.Remove(args[0])
			if err != nil {
				return err
			}
			if !removed {
				return fmt.Errorf("no favorite named %q", args[0])
			}
			fmt.Printf("removed %s\n", args[0])
			return nil
		},
	}
}

func favListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List saved places",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			favs, err := favStore()
			if err != nil {
				return err
			}
			list, err := favs.List()
			if err != nil {
				return err
			}
			render.Favorites(os.Stdout, list)
			return nil
		},
	}
}
