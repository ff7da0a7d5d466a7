package discovery

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	ec2types "github.com/aws/aws-sdk-go-v2/service/ec2/types"
	elbv2 "github.com/aws/aws-sdk-go-v2/service/elasticloadbalancingv2"
	elbv2types "github.com/aws/aws-sdk-go-v2/service/elasticloadbalancingv2/types"
	"go.uber.org/zap"

	"github.com/exposechain/exposechain/internal/model"
)

// AWSConfig selects the account and region to scan. Empty keys fall back to
// the SDK's default credential chain.
type AWSConfig struct {
	Region          string
	AccessKeyID     string
	SecretAccessKey string
}

// ELBAPI is the subset of the ELBv2 client the scanner calls.
type ELBAPI interface {
	elbv2.DescribeLoadBalancersAPIClient
	elbv2.DescribeListenersAPIClient
	DescribeTags(ctx context.Context, params *elbv2.DescribeTagsInput, optFns ...func(*elbv2.Options)) (*elbv2.DescribeTagsOutput, error)
}

// EC2API is the subset of the EC2 client the scanner calls.
type EC2API interface {
	ec2.DescribeInstancesAPIClient
}

// AWSScanner finds internet-facing ELBv2 listeners and EC2 instances with a
// public IP.
type AWSScanner struct {
	elb    ELBAPI
	ec2    EC2API
	logger *zap.Logger
}

// NewAWSClients loads the SDK configuration and builds the ELBv2 and EC2
// clients.
func NewAWSClients(ctx context.Context, cfg AWSConfig) (*elbv2.Client, *ec2.Client, error) {
	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(cfg.Region)}
	if cfg.AccessKeyID != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, nil, fmt.Errorf("load aws config: %w", err)
	}
	return elbv2.NewFromConfig(awsCfg), ec2.NewFromConfig(awsCfg), nil
}

// NewAWS returns an AWSScanner over the given clients.
func NewAWS(elb ELBAPI, ec2Client EC2API, logger *zap.Logger) *AWSScanner {
	return &AWSScanner{elb: elb, ec2: ec2Client, logger: logger}
}

// Source implements Source.
func (a *AWSScanner) Source() string { return model.SourceAWS }

// Discover implements Source. Load balancers and instances are listed
// independently; a failure in one keeps the other's exposures.
func (a *AWSScanner) Discover(ctx context.Context) ([]*model.Exposure, error) {
	lbs, elbErr := a.loadBalancers(ctx)
	if elbErr != nil {
		a.logger.Error("discovery: list load balancers", zap.Error(elbErr))
	}
	instances, ec2Err := a.instances(ctx)
	if ec2Err != nil {
		a.logger.Error("discovery: list instances", zap.Error(ec2Err))
	}

	out := append(lbs, instances...)
	a.logger.Info("discovery: aws scan complete", zap.Int("exposures", len(out)))
	return out, errors.Join(elbErr, ec2Err)
}

// ── Load balancers ────────────────────────────────────────────────────────────

func (a *AWSScanner) loadBalancers(ctx context.Context) ([]*model.Exposure, error) {
	var out []*model.Exposure
	pages := elbv2.NewDescribeLoadBalancersPaginator(a.elb, &elbv2.DescribeLoadBalancersInput{})
	for pages.HasMorePages() {
		page, err := pages.NextPage(ctx)
		if err != nil {
			return out, fmt.Errorf("describe load balancers: %w", err)
		}
		for _, lb := range page.LoadBalancers {
			if lb.Scheme != elbv2types.LoadBalancerSchemeEnumInternetFacing {
				continue
			}
			arn := aws.ToString(lb.LoadBalancerArn)
			tags := a.tags(ctx, arn)
			listeners, err := a.listeners(ctx, arn)
			if err != nil {
				a.logger.Warn("discovery: list listeners", zap.String("arn", arn), zap.Error(err))
				continue
			}
			for _, l := range listeners {
				port := int(aws.ToInt32(l.Port))
				proto := string(l.Protocol)
				if proto == "" {
					proto = "TCP"
				}
				out = append(out, &model.Exposure{
					Source:            model.SourceAWS,
					Domain:            aws.ToString(lb.DNSName),
					Port:              &port,
					Protocol:          proto,
					TLSEnabled:        l.Protocol == elbv2types.ProtocolEnumHttps,
					CloudProvider:     "aws",
					CloudResourceID:   arn,
					CloudResourceType: "elbv2",
					Annotations:       tags,
					Environment:       tagEnvironment(tags),
					OwnerTeam:         tagOwner(tags),
					RawData: map[string]string{
						"name":   aws.ToString(lb.LoadBalancerName),
						"type":   string(lb.Type),
						"vpc_id": aws.ToString(lb.VpcId),
					},
				})
			}
		}
	}
	return out, nil
}

func (a *AWSScanner) listeners(ctx context.Context, arn string) ([]elbv2types.Listener, error) {
	var out []elbv2types.Listener
	pages := elbv2.NewDescribeListenersPaginator(a.elb, &elbv2.DescribeListenersInput{LoadBalancerArn: aws.String(arn)})
	for pages.HasMorePages() {
		page, err := pages.NextPage(ctx)
		if err != nil {
			return nil, err
		}
		out = append(out, page.Listeners...)
	}
	return out, nil
}

// tags returns the load balancer's tags. A failed lookup yields no tags.
func (a *AWSScanner) tags(ctx context.Context, arn string) map[string]string {
	out := map[string]string{}
	resp, err := a.elb.DescribeTags(ctx, &elbv2.DescribeTagsInput{ResourceArns: []string{arn}})
	if err != nil {
		a.logger.Debug("discovery: describe tags", zap.String("arn", arn), zap.Error(err))
		return out
	}
	for _, d := range resp.TagDescriptions {
		for _, t := range d.Tags {
			out[aws.ToString(t.Key)] = aws.ToString(t.Value)
		}
	}
	return out
}

// ── Instances ─────────────────────────────────────────────────────────────────

func (a *AWSScanner) instances(ctx context.Context) ([]*model.Exposure, error) {
	var out []*model.Exposure
	pages := ec2.NewDescribeInstancesPaginator(a.ec2, &ec2.DescribeInstancesInput{
		Filters: []ec2types.Filter{{Name: aws.String("ip-address"), Values: []string{"*"}}},
	})
	for pages.HasMorePages() {
		page, err := pages.NextPage(ctx)
		if err != nil {
			return out, fmt.Errorf("describe instances: %w", err)
		}
		for _, res := range page.Reservations {
			for _, inst := range res.Instances {
				ip := aws.ToString(inst.PublicIpAddress)
				if ip == "" {
					continue
				}
				tags := make(map[string]string, len(inst.Tags))
				for _, t := range inst.Tags {
					tags[aws.ToString(t.Key)] = aws.ToString(t.Value)
				}
				state := ""
				if inst.State != nil {
					state = string(inst.State.Name)
				}
				id := aws.ToString(inst.InstanceId)
				out = append(out, &model.Exposure{
					Source:            model.SourceAWS,
					IPAddress:         ip,
					Protocol:          "TCP",
					CloudProvider:     "aws",
					CloudResourceID:   id,
					CloudResourceType: "ec2",
					Annotations:       tags,
					Environment:       tagEnvironment(tags),
					OwnerTeam:         tagOwner(tags),
					RawData: map[string]string{
						"instance_id":   id,
						"instance_type": string(inst.InstanceType),
						"state":         state,
					},
				})
			}
		}
	}
	return out, nil
}

// ── Tags ──────────────────────────────────────────────────────────────────────

func tagEnvironment(tags map[string]string) string {
	if env, ok := tags["Environment"]; ok {
		return env
	}
	if env, ok := tags["environment"]; ok {
		return env
	}
	return "unknown"
}

func tagOwner(tags map[string]string) string {
	if o, ok := tags["Owner"]; ok {
		return o
	}
	return tags["team"]
}
