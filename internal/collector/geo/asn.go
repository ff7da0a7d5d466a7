package geo

// datacenterASNs are autonomous systems operated by cloud, hosting or CDN
// providers. An IP announced by one of them is flagged as hosting.
var datacenterASNs = map[uint]bool{
	13335:  true, // Cloudflare
	14061:  true, // DigitalOcean
	14618:  true, // Amazon
	15169:  true, // Google
	16276:  true, // OVH
	16509:  true, // Amazon
	16625:  true, // Akamai
	20473:  true, // Vultr
	20940:  true, // Akamai
	24940:  true, // Hetzner
	31898:  true, // Oracle Cloud
	396982: true, // Google Cloud
	45102:  true, // Alibaba Cloud
	51167:  true, // Contabo
	54113:  true, // Fastly
	63949:  true, // Linode
	8075:   true, // Microsoft
	8560:   true, // IONOS
	132203: true, // Tencent Cloud
}
