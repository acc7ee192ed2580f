// Package admin provides shift and user bookkeeping subcommands.
package admin

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/visiongate/visiongate/internal/conf"
	"github.com/visiongate/visiongate/internal/datastore"
)

// Command creates the admin command group.
func Command(settings *conf.Settings) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "admin",
		Short: "Manage shifts and face users",
	}
	cmd.AddCommand(
		shiftAddCommand(settings),
		shiftAssignCommand(settings),
		userAddCommand(settings),
	)
	return cmd
}

func withStore(settings *conf.Settings, fn func(store datastore.Interface) error) error {
	store, err := datastore.New(settings)
	if err != nil {
		return err
	}
	if err := store.Open(); err != nil {
		return err
	}
	defer store.Close()
	return fn(store)
}

func shiftAddCommand(settings *conf.Settings) *cobra.Command {
	var name string
	var start, end string
	var grace int

	cmd := &cobra.Command{
		Use:   "shift-add",
		Short: "Create a work shift",
		RunE: func(cmd *cobra.Command, args []string) error {
			startMin, err := parseClock(start)
			if err != nil {
				return err
			}
			endMin, err := parseClock(end)
			if err != nil {
				return err
			}
			return withStore(settings, func(store datastore.Interface) error {
				shift := &datastore.Shift{
					Name:         name,
					StartMinutes: startMin,
					EndMinutes:   endMin,
					GraceMinutes: grace,
					Active:       true,
				}
				if err := store.SaveShift(cmd.Context(), shift); err != nil {
					return err
				}
				fmt.Printf("shift %q created with id %d\n", name, shift.ID)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "Shift name")
	cmd.Flags().StringVar(&start, "start", "09:00", "Shift start, HH:MM")
	cmd.Flags().StringVar(&end, "end", "17:00", "Shift end, HH:MM (before start means the shift crosses midnight)")
	cmd.Flags().IntVar(&grace, "grace", 15, "Grace period in minutes")
	_ = cmd.MarkFlagRequired("name")
	return cmd
}

func shiftAssignCommand(settings *conf.Settings) *cobra.Command {
	var userID string
	var shiftID uint
	var effective string

	cmd := &cobra.Command{
		Use:   "shift-assign",
		Short: "Assign a shift to a user",
		RunE: func(cmd *cobra.Command, args []string) error {
			effectiveDate, err := time.Parse("2006-01-02", effective)
			if err != nil {
				return fmt.Errorf("invalid effective date: %w", err)
			}
			return withStore(settings, func(store datastore.Interface) error {
				assignment := &datastore.UserShift{
					UserID:        userID,
					ShiftID:       shiftID,
					EffectiveDate: effectiveDate,
				}
				if err := store.SaveUserShift(cmd.Context(), assignment); err != nil {
					return err
				}
				fmt.Printf("user %s assigned to shift %d from %s\n", userID, shiftID, effective)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&userID, "user", "", "User identifier")
	cmd.Flags().UintVar(&shiftID, "shift", 0, "Shift id")
	cmd.Flags().StringVar(&effective, "from", time.Now().Format("2006-01-02"), "Effective date, YYYY-MM-DD")
	_ = cmd.MarkFlagRequired("user")
	_ = cmd.MarkFlagRequired("shift")
	return cmd
}

func userAddCommand(settings *conf.Settings) *cobra.Command {
	var userID, name, group, department, position, gender string

	cmd := &cobra.Command{
		Use:   "user-add",
		Short: "Register a face user",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(settings, func(store datastore.Interface) error {
				user := &datastore.FaceUser{
					UserID: userID, Name: name, Group: group,
					Department: department, Position: position, Gender: gender,
				}
				if err := store.SaveFaceUser(cmd.Context(), user); err != nil {
					return err
				}
				fmt.Printf("user %s (%s) registered\n", userID, name)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&userID, "id", "", "User identifier matching the device face database")
	cmd.Flags().StringVar(&name, "name", "", "Display name")
	cmd.Flags().StringVar(&group, "group", "", "Group name")
	cmd.Flags().StringVar(&department, "department", "", "Department")
	cmd.Flags().StringVar(&position, "position", "", "Position or job title")
	cmd.Flags().StringVar(&gender, "gender", "", "Gender")
	_ = cmd.MarkFlagRequired("id")
	return cmd
}

// parseClock converts HH:MM into minutes from midnight.
func parseClock(s string) (int, error) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return 0, fmt.Errorf("invalid clock value %q: %w", s, err)
	}
	return t.Hour()*60 + t.Minute(), nil
}
