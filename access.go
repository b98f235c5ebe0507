package main

import (
	"fmt"

	"github.com/pulumi/pulumi-aws/sdk/v6/go/aws/ec2"
	"github.com/pulumi/pulumi/sdk/v3/go/pulumi"
)

type accessResources struct {
	BastionSG *ec2.SecurityGroup
	PrivateSG *ec2.SecurityGroup
}

// createAccessControl declares the two network boundaries: the bastion
// group reachable on the public SSH port from the ELB subnets plus the
// explicit allow-list, and the private-instances group reachable only
// from the bastion group itself.
func createAccessControl(ctx *pulumi.Context, cfg *Config) (*accessResources, error) {
	bastionSg, err := ec2.NewSecurityGroup(ctx, "bastion-host-sg", &ec2.SecurityGroupArgs{
		Description: pulumi.String("Enable SSH access to the bastion hosts"),
		VpcId:       pulumi.String(cfg.Network.VpcID),
		Tags:        cfg.resourceTags("bastion-host"),
	})
	if err != nil {
		return nil, err
	}

	ingressCidrs, err := sshIngressCidrs(ctx, cfg)
	if err != nil {
		return nil, err
	}

	_, err = ec2.NewSecurityGroupRule(ctx, "bastion-ssh-ingress", &ec2.SecurityGroupRuleArgs{
		Type:            pulumi.String("ingress"),
		FromPort:        pulumi.Int(cfg.SSH.PublicPort),
		ToPort:          pulumi.Int(cfg.SSH.PublicPort),
		Protocol:        pulumi.String("tcp"),
		CidrBlocks:      pulumi.ToStringArray(ingressCidrs),
		SecurityGroupId: bastionSg.ID(),
	})
	if err != nil {
		return nil, err
	}

	_, err = ec2.NewSecurityGroupRule(ctx, "bastion-egress", &ec2.SecurityGroupRuleArgs{
		Type:            pulumi.String("egress"),
		FromPort:        pulumi.Int(0),
		ToPort:          pulumi.Int(0),
		Protocol:        pulumi.String("-1"),
		CidrBlocks:      pulumi.StringArray{pulumi.String("0.0.0.0/0")},
		SecurityGroupId: bastionSg.ID(),
	})
	if err != nil {
		return nil, err
	}

	privateSg, err := ec2.NewSecurityGroup(ctx, "bastion-private-instances-sg", &ec2.SecurityGroupArgs{
		Description: pulumi.String("Enable SSH access to private instances from the bastion only"),
		VpcId:       pulumi.String(cfg.Network.VpcID),
		Tags:        cfg.resourceTags("bastion-private-instances"),
	})
	if err != nil {
		return nil, err
	}

	// Group reference, never a CIDR: private instances must only be
	// reachable through the bastion.
	_, err = ec2.NewSecurityGroupRule(ctx, "private-ssh-ingress", &ec2.SecurityGroupRuleArgs{
		Type:                  pulumi.String("ingress"),
		FromPort:              pulumi.Int(cfg.SSH.PrivatePort),
		ToPort:                pulumi.Int(cfg.SSH.PrivatePort),
		Protocol:              pulumi.String("tcp"),
		SourceSecurityGroupId: bastionSg.ID(),
		SecurityGroupId:       privateSg.ID(),
	})
	if err != nil {
		return nil, err
	}

	return &accessResources{BastionSG: bastionSg, PrivateSG: privateSg}, nil
}

// sshIngressCidrs resolves each ELB subnet to its CIDR block and unions
// the result with the configured allow-list.
func sshIngressCidrs(ctx *pulumi.Context, cfg *Config) ([]string, error) {
	cidrs := make([]string, 0, len(cfg.Network.ElbSubnets)+len(cfg.Network.Cidrs))
	for _, id := range cfg.Network.ElbSubnets {
		subnet, err := ec2.LookupSubnet(ctx, &ec2.LookupSubnetArgs{
			Id: pulumi.StringRef(id),
		})
		if err != nil {
			return nil, fmt.Errorf("look up subnet %s: %w", id, err)
		}
		cidrs = append(cidrs, subnet.CidrBlock)
	}
	return append(cidrs, cfg.Network.Cidrs...), nil
}
