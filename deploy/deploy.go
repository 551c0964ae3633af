// Package deploy describes the hosting infrastructure for a built site: a
// CloudFront distribution in front of an S3 bucket, with an edge function
// that rewrites directory requests to their index document.
//
// The plan is declarative data. Nothing here talks to AWS.
package deploy

import (
	"fmt"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

const (
	// EdgeRegion is where certificates and edge functions must live.
	EdgeRegion = "us-east-1"
	// EdgeVersionParameter carries the edge function version ARN across regions.
	EdgeVersionParameter = "/blog/lambdaEdgeLambdaVersion"

	EdgeStackName = "LambdaEdgeCloudFrontRewriteStack"
	WebStackName  = "WebBackendStack"

	defaultEdgeLambdaPath = "lambda-edge"
	cacheTTLSeconds       = 300
)

var accountPattern = regexp.MustCompile(`^[0-9]{12}$`)

// Config holds the deployment parameters.
type Config struct {
	DomainName    string `yaml:"domainName"`
	APILambdaPath string `yaml:"apiLambdaPath"`
	WebAssets     string `yaml:"webAssets"`
	TargetAccount string `yaml:"targetAccount"`
	Region        string `yaml:"region"`

	// EdgeLambdaPath is the bundle for the rewrite function. Defaults to lambda-edge.
	EdgeLambdaPath string `yaml:"edgeLambdaPath,omitempty"`
	// IncludeAPI routes api/* to the hello-world lambda behind API Gateway.
	IncludeAPI bool `yaml:"includeApi,omitempty"`
}

// Validate reports every missing or malformed field.
func (c Config) Validate() error {
	var problems []string
	required := []struct{ name, value string }{
		{"domainName", c.DomainName},
		{"apiLambdaPath", c.APILambdaPath},
		{"webAssets", c.WebAssets},
		{"targetAccount", c.TargetAccount},
		{"region", c.Region},
	}
	for _, f := range required {
		if strings.TrimSpace(f.value) == "" {
			problems = append(problems, f.name+" is required")
		}
	}
	if c.DomainName != "" && (strings.Contains(c.DomainName, "/") || strings.HasPrefix(c.DomainName, "www.")) {
		problems = append(problems, fmt.Sprintf("domainName %q must be a bare apex domain", c.DomainName))
	}
	if c.TargetAccount != "" && !accountPattern.MatchString(c.TargetAccount) {
		problems = append(problems, fmt.Sprintf("targetAccount %q must be a 12 digit account id", c.TargetAccount))
	}
	if len(problems) > 0 {
		return fmt.Errorf("invalid deploy config: %s", strings.Join(problems, "; "))
	}
	return nil
}

func (c Config) edgeLambdaPath() string {
	if c.EdgeLambdaPath == "" {
		return defaultEdgeLambdaPath
	}
	return c.EdgeLambdaPath
}

// Resource is one declared piece of infrastructure.
type Resource struct {
	ID         string         `yaml:"id"`
	Type       string         `yaml:"type"`
	Properties map[string]any `yaml:"properties,omitempty"`
	DependsOn  []string       `yaml:"dependsOn,omitempty"`
}

// Stack is a set of resources deployed together into one account and region.
type Stack struct {
	Name      string            `yaml:"name"`
	Account   string            `yaml:"account"`
	Region    string            `yaml:"region"`
	Tags      map[string]string `yaml:"tags"`
	Resources []Resource        `yaml:"resources"`
}

// Resource returns the resource with the given id.
func (s Stack) Resource(id string) (Resource, bool) {
	for _, r := range s.Resources {
		if r.ID == id {
			return r, true
		}
	}
	return Resource{}, false
}

// Deployment is the ordered list of stacks. Earlier stacks must be deployed first.
type Deployment struct {
	Stacks []Stack `yaml:"stacks"`
}

// Stack returns the stack with the given name.
func (d Deployment) Stack(name string) (Stack, bool) {
	for _, s := range d.Stacks {
		if s.Name == name {
			return s, true
		}
	}
	return Stack{}, false
}

// YAML renders the deployment.
func (d Deployment) YAML() ([]byte, error) {
	return yaml.Marshal(d)
}

// Plan builds the deployment for cfg.
func Plan(cfg Config) (Deployment, error) {
	if err := cfg.Validate(); err != nil {
		return Deployment{}, err
	}
	return Deployment{Stacks: []Stack{edgeStack(cfg), webStack(cfg)}}, nil
}

func tags() map[string]string {
	return map[string]string{"cdk": "true"}
}

func edgeStack(cfg Config) Stack {
	return Stack{
		Name:    EdgeStackName,
		Account: cfg.TargetAccount,
		Region:  EdgeRegion,
		Tags:    tags(),
		Resources: []Resource{
			{
				ID:   "EdgeRole",
				Type: "AWS::IAM::Role",
				Properties: map[string]any{
					"assumedBy":       []string{"lambda.amazonaws.com", "edgelambda.amazonaws.com"},
					"managedPolicies": []string{"service-role/AWSLambdaBasicExecutionRole"},
				},
			},
			{
				ID:   "LambdaEdgeFunction",
				Type: "AWS::Lambda::Function",
				Properties: map[string]any{
					"description":      "Rewrites directory requests to their index document",
					"code":             cfg.edgeLambdaPath(),
					"handler":          "index.handler",
					"runtime":          "nodejs18.x",
					"timeoutSeconds":   5,
					"memorySize":       128,
					"logRetentionDays": 1,
				},
				DependsOn: []string{"EdgeRole"},
			},
			{
				ID:   "LambdaEdgeLambdaVersion",
				Type: "AWS::SSM::Parameter",
				Properties: map[string]any{
					"name":        EdgeVersionParameter,
					"description": "Edge function version shared with the web stack",
					"value":       "LambdaEdgeFunction.currentVersion.arn",
				},
				DependsOn: []string{"LambdaEdgeFunction"},
			},
		},
	}
}

func webStack(cfg Config) Stack {
	domain := cfg.DomainName
	www := "www." + domain
	bucket := "website-" + cfg.TargetAccount

	origins := []any{
		map[string]any{
			"s3Bucket":             bucket,
			"originAccessIdentity": "WebOai",
			"behaviors": []any{
				map[string]any{
					"default":           true,
					"defaultTtlSeconds": cacheTTLSeconds,
					"maxTtlSeconds":     cacheTTLSeconds,
					"viewerRequest":     "LambdaParameter.Parameter.Value",
				},
			},
		},
	}

	resources := []Resource{
		{
			ID:         "HostedZone",
			Type:       "Lookup::Route53::HostedZone",
			Properties: map[string]any{"domainName": domain},
		},
		{
			ID:   "WebsiteCertificate",
			Type: "AWS::CertificateManager::Certificate",
			Properties: map[string]any{
				"domainName":              domain,
				"subjectAlternativeNames": []string{www},
				"validation":              "DNS",
				"region":                  EdgeRegion,
			},
			DependsOn: []string{"HostedZone"},
		},
		{
			ID:   "WebsiteBucket",
			Type: "AWS::S3::Bucket",
			Properties: map[string]any{
				"bucketName":    bucket,
				"indexDocument": "index.html",
				"encryption":    "UNENCRYPTED",
				"removalPolicy": "DESTROY",
				"assets":        cfg.WebAssets,
			},
		},
		{
			ID:         "WebOai",
			Type:       "AWS::CloudFront::CloudFrontOriginAccessIdentity",
			Properties: map[string]any{"comment": "OriginAccessIdentity for " + domain, "grantRead": bucket},
			DependsOn:  []string{"WebsiteBucket"},
		},
		{
			ID:   "LambdaParameter",
			Type: "Custom::AWS::SSM::GetParameter",
			Properties: map[string]any{
				"name":   EdgeVersionParameter,
				"region": EdgeRegion,
			},
		},
	}

	if cfg.IncludeAPI {
		resources = append(resources, apiResources(cfg)...)
		origins = append(origins, map[string]any{
			"customDomain": "HelloWorldApi.executeApiDomain",
			"behaviors": []any{
				map[string]any{"pathPattern": "api/*", "allowedMethods": "ALL"},
			},
		})
	}

	distDeps := []string{"WebsiteCertificate", "WebOai", "LambdaParameter"}
	if cfg.IncludeAPI {
		distDeps = append(distDeps, "HelloWorldApi")
	}
	resources = append(resources,
		Resource{
			ID:   "CloudFrontWebDistribution",
			Type: "AWS::CloudFront::Distribution",
			Properties: map[string]any{
				"comment":              "CloudFront distribution for " + domain,
				"aliases":              []string{domain},
				"certificate":          "WebsiteCertificate",
				"priceClass":           "PriceClass_100",
				"viewerProtocolPolicy": "redirect-to-https",
				"origins":              origins,
				"errorResponses": []any{
					map[string]any{"errorCode": 403, "responseCode": 200, "responsePagePath": "/index.html"},
					map[string]any{"errorCode": 404, "responseCode": 200, "responsePagePath": "/index.html"},
				},
			},
			DependsOn: distDeps,
		},
		Resource{
			ID:   "WebHttpsRedirect",
			Type: "Pattern::Route53::HttpsRedirect",
			Properties: map[string]any{
				"recordNames":  []string{www},
				"targetDomain": domain,
				"certificate":  "WebsiteCertificate",
			},
			DependsOn: []string{"HostedZone", "WebsiteCertificate"},
		},
		Resource{
			ID:   "ApexARecord",
			Type: "AWS::Route53::RecordSet",
			Properties: map[string]any{
				"recordName": domain,
				"type":       "A",
				"aliasTo":    "CloudFrontWebDistribution",
			},
			DependsOn: []string{"HostedZone", "CloudFrontWebDistribution"},
		},
	)

	return Stack{
		Name:      WebStackName,
		Account:   cfg.TargetAccount,
		Region:    cfg.Region,
		Tags:      tags(),
		Resources: resources,
	}
}

func apiResources(cfg Config) []Resource {
	return []Resource{
		{
			ID:   "HelloWorldLambda",
			Type: "AWS::Lambda::Function",
			Properties: map[string]any{
				"description":      "Hello world lambda behind API Gateway",
				"code":             cfg.APILambdaPath,
				"handler":          "bootstrap",
				"runtime":          "provided.al2023",
				"timeoutSeconds":   10,
				"memorySize":       256,
				"logRetentionDays": 7,
			},
		},
		{
			ID:   "HelloWorldApi",
			Type: "AWS::ApiGateway::RestApi",
			Properties: map[string]any{
				"name":      "HelloWorld",
				"stageName": "api",
				"invokes":   "HelloWorldLambda",
			},
			DependsOn: []string{"HelloWorldLambda"},
		},
	}
}
