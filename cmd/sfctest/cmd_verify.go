package main

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/newtron-network/sfctest/pkg/deployment"
	"github.com/newtron-network/sfctest/pkg/ovs"
	"github.com/newtron-network/sfctest/pkg/util"
	"github.com/newtron-network/sfctest/pkg/verify"
)

func newVerifyCmd() *cobra.Command {
	var rules []string
	var timeout time.Duration
	var table int

	cmd := &cobra.Command{
		Use:   "verify",
		Short: "Wait for classification rules to appear on the compute nodes",
		Long: `Verify polls the controller for rendered service paths and the classifier
table of every compute node until each rule has a matching flow.

Rules are given as classifier:chain:port, matching on the destination port,
or classifier:chain:src=port to match on the source port.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			expectations, err := parseRules(rules)
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			s, err := connect(ctx)
			if err != nil {
				return err
			}
			defer s.Close()

			ctrl, err := s.controllerClient(ctx)
			if err != nil {
				return err
			}
			var nodes []verify.Node
			for _, n := range deployment.Computes(s.nodes) {
				nodes = append(nodes, verify.Node{Name: n.Name, Flows: ovs.NewOfctlQuerier(n.Host, n.User)})
			}
			if timeout == 0 {
				timeout = s.cfg.Timeouts.Convergence
			}

			task, err := verify.Start(nodes, ctrl, expectations, verify.Options{
				Table:    table,
				Interval: s.cfg.Timeouts.PollInterval,
				Timeout:  timeout,
			})
			if err != nil {
				return err
			}
			res := task.Wait()
			for _, m := range res.Matched {
				util.WithNode(m.Node).Debugf("%s nsp=%#x: %s", m.Classifier, m.NSP, m.Flow)
			}
			fmt.Println(res.Summary())
			if !res.Converged {
				return fmt.Errorf("not converged: %w", util.ErrTimeout)
			}
			return nil
		},
	}

	cmd.Flags().StringArrayVar(&rules, "classifier", nil, "rule as classifier:chain:port (repeatable)")
	cmd.Flags().DurationVar(&timeout, "timeout", 0, "give up after this long (default from config)")
	cmd.Flags().IntVar(&table, "table", ovs.ClassifierTable, "OpenFlow table holding the classifier")
	_ = cmd.MarkFlagRequired("classifier")
	return cmd
}

// parseRules reads classifier:chain:port and classifier:chain:src=port.
func parseRules(rules []string) ([]verify.Expectation, error) {
	var exps []verify.Expectation
	for _, r := range rules {
		parts := strings.Split(r, ":")
		if len(parts) != 3 || parts[0] == "" || parts[1] == "" {
			return nil, fmt.Errorf("rule %q: want classifier:chain:port", r)
		}
		e := verify.Expectation{Classifier: parts[0], Chain: parts[1]}
		portStr, src := strings.CutPrefix(parts[2], "src=")
		port, err := strconv.Atoi(portStr)
		if err != nil || port <= 0 || port > 65535 {
			return nil, fmt.Errorf("rule %q: bad port %q", r, portStr)
		}
		if src {
			e.SourcePort = port
		} else {
			e.DestPort = port
		}
		exps = append(exps, e)
	}
	return exps, nil
}
