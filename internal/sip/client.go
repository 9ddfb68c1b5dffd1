package sip

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/livekit/protocol/livekit"
	lksdk "github.com/livekit/server-sdk-go/v2"
)

// sipService is the slice of the LiveKit SIP API the direct backend uses.
// *lksdk.SIPClient satisfies it; tests plug in a fake.
type sipService interface {
	CreateSIPInboundTrunk(ctx context.Context, req *livekit.CreateSIPInboundTrunkRequest) (*livekit.SIPInboundTrunkInfo, error)
	CreateSIPOutboundTrunk(ctx context.Context, req *livekit.CreateSIPOutboundTrunkRequest) (*livekit.SIPOutboundTrunkInfo, error)
	CreateSIPDispatchRule(ctx context.Context, req *livekit.CreateSIPDispatchRuleRequest) (*livekit.SIPDispatchRuleInfo, error)
	ListSIPInboundTrunk(ctx context.Context, req *livekit.ListSIPInboundTrunkRequest) (*livekit.ListSIPInboundTrunkResponse, error)
	ListSIPOutboundTrunk(ctx context.Context, req *livekit.ListSIPOutboundTrunkRequest) (*livekit.ListSIPOutboundTrunkResponse, error)
	ListSIPDispatchRule(ctx context.Context, req *livekit.ListSIPDispatchRuleRequest) (*livekit.ListSIPDispatchRuleResponse, error)
	DeleteSIPTrunk(ctx context.Context, req *livekit.DeleteSIPTrunkRequest) (*livekit.SIPTrunkInfo, error)
	DeleteSIPDispatchRule(ctx context.Context, req *livekit.DeleteSIPDispatchRuleRequest) (*livekit.SIPDispatchRuleInfo, error)
}

// APIBackend provisions SIP resources by calling the platform API directly,
// bypassing the CLI. It interprets only the literal descriptor fields and
// forwards everything it understands.
type APIBackend struct {
	svc sipService
}

// NewAPIBackend connects to the SIP service with the telephony credential set.
func NewAPIBackend(url, apiKey, apiSecret string) *APIBackend {
	return &APIBackend{svc: lksdk.NewSIPClient(url, apiKey, apiSecret)}
}

func (b *APIBackend) Name() string { return "platform api" }

func (b *APIBackend) Available() error {
	if b.svc == nil {
		return fmt.Errorf("sip client not configured")
	}
	return nil
}

type inboundDescriptor struct {
	Name            string   `json:"name"`
	InboundAddrs    []string `json:"inbound_addresses"`
	InboundNumbers  []string `json:"inbound_numbers"`
	InboundUsername string   `json:"inbound_username"`
	InboundPassword string   `json:"inbound_password"`
}

func (b *APIBackend) CreateInboundTrunk(ctx context.Context, d Descriptor) (string, error) {
	var desc inboundDescriptor
	if err := json.Unmarshal(d.JSON, &desc); err != nil {
		return "", fmt.Errorf("parse %s: %w", d.Path, err)
	}

	info, err := b.svc.CreateSIPInboundTrunk(ctx, &livekit.CreateSIPInboundTrunkRequest{
		Trunk: &livekit.SIPInboundTrunkInfo{
			Name:             desc.Name,
			Numbers:          desc.InboundNumbers,
			AllowedAddresses: desc.InboundAddrs,
			AuthUsername:     desc.InboundUsername,
			AuthPassword:     desc.InboundPassword,
		},
	})
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("created inbound trunk %s", info.SipTrunkId), nil
}

type outboundDescriptor struct {
	Name             string `json:"name"`
	OutboundNumber   string `json:"outbound_number"`
	OutboundAddress  string `json:"outbound_address"`
	OutboundUsername string `json:"outbound_username"`
	OutboundPassword string `json:"outbound_password"`
}

func (b *APIBackend) CreateOutboundTrunk(ctx context.Context, d Descriptor) (string, error) {
	var desc outboundDescriptor
	if err := json.Unmarshal(d.JSON, &desc); err != nil {
		return "", fmt.Errorf("parse %s: %w", d.Path, err)
	}

	var numbers []string
	if desc.OutboundNumber != "" {
		numbers = []string{desc.OutboundNumber}
	}
	info, err := b.svc.CreateSIPOutboundTrunk(ctx, &livekit.CreateSIPOutboundTrunkRequest{
		Trunk: &livekit.SIPOutboundTrunkInfo{
			Name:         desc.Name,
			Address:      desc.OutboundAddress,
			Numbers:      numbers,
			AuthUsername: desc.OutboundUsername,
			AuthPassword: desc.OutboundPassword,
		},
	})
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("created outbound trunk %s", info.SipTrunkId), nil
}

type dispatchDescriptor struct {
	RoomName string   `json:"roomName"`
	TrunkIDs []string `json:"trunk_ids"`
}

func (b *APIBackend) CreateDispatchRule(ctx context.Context, d Descriptor) (string, error) {
	var desc dispatchDescriptor
	if err := json.Unmarshal(d.JSON, &desc); err != nil {
		return "", fmt.Errorf("parse %s: %w", d.Path, err)
	}

	info, err := b.svc.CreateSIPDispatchRule(ctx, &livekit.CreateSIPDispatchRuleRequest{
		TrunkIds: desc.TrunkIDs,
		Rule: &livekit.SIPDispatchRule{
			Rule: &livekit.SIPDispatchRule_DispatchRuleDirect{
				DispatchRuleDirect: &livekit.SIPDispatchRuleDirect{
					RoomName: desc.RoomName,
				},
			},
		},
	})
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("created dispatch rule %s", info.SipDispatchRuleId), nil
}

// CreateRoomPrefixDispatchRule routes each inbound call into its own room
// under the given prefix.
func (b *APIBackend) CreateRoomPrefixDispatchRule(ctx context.Context, name, roomPrefix string, trunkIDs []string) (string, error) {
	info, err := b.svc.CreateSIPDispatchRule(ctx, &livekit.CreateSIPDispatchRuleRequest{
		Name:     name,
		TrunkIds: trunkIDs,
		Rule: &livekit.SIPDispatchRule{
			Rule: &livekit.SIPDispatchRule_DispatchRuleIndividual{
				DispatchRuleIndividual: &livekit.SIPDispatchRuleIndividual{
					RoomPrefix: roomPrefix,
				},
			},
		},
	})
	if err != nil {
		return "", err
	}
	return info.SipDispatchRuleId, nil
}

func (b *APIBackend) List(ctx context.Context) (string, error) {
	var out strings.Builder

	inbound, err := b.svc.ListSIPInboundTrunk(ctx, &livekit.ListSIPInboundTrunkRequest{})
	if err != nil {
		return "", fmt.Errorf("list inbound trunks: %w", err)
	}
	out.WriteString("=== Inbound SIP Trunks ===\n")
	for _, trunk := range inbound.Items {
		fmt.Fprintf(&out, "  ID: %s\n  Name: %s\n  Numbers: %v\n\n", trunk.SipTrunkId, trunk.Name, trunk.Numbers)
	}

	outbound, err := b.svc.ListSIPOutboundTrunk(ctx, &livekit.ListSIPOutboundTrunkRequest{})
	if err != nil {
		return "", fmt.Errorf("list outbound trunks: %w", err)
	}
	out.WriteString("=== Outbound SIP Trunks ===\n")
	for _, trunk := range outbound.Items {
		fmt.Fprintf(&out, "  ID: %s\n  Name: %s\n  Address: %s\n  Numbers: %v\n\n", trunk.SipTrunkId, trunk.Name, trunk.Address, trunk.Numbers)
	}

	rules, err := b.svc.ListSIPDispatchRule(ctx, &livekit.ListSIPDispatchRuleRequest{})
	if err != nil {
		return "", fmt.Errorf("list dispatch rules: %w", err)
	}
	out.WriteString("=== SIP Dispatch Rules ===\n")
	for _, rule := range rules.Items {
		fmt.Fprintf(&out, "  ID: %s\n  Name: %s\n  Trunk IDs: %v\n\n", rule.SipDispatchRuleId, rule.Name, rule.TrunkIds)
	}

	return out.String(), nil
}

// DeleteTrunk removes a trunk by id.
func (b *APIBackend) DeleteTrunk(ctx context.Context, trunkID string) error {
	_, err := b.svc.DeleteSIPTrunk(ctx, &livekit.DeleteSIPTrunkRequest{SipTrunkId: trunkID})
	return err
}

// DeleteDispatchRule removes a dispatch rule by id.
func (b *APIBackend) DeleteDispatchRule(ctx context.Context, ruleID string) error {
	_, err := b.svc.DeleteSIPDispatchRule(ctx, &livekit.DeleteSIPDispatchRuleRequest{SipDispatchRuleId: ruleID})
	return err
}
