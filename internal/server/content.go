package server

import (
	"fmt"
	"time"

	"subtranslate/site/internal/render"
)

var featureHighlights = []render.Feature{
	{
		Title:       "Gercek zamanli ceviri",
		Description: "Altyazi dosyalarinizi yukleyin, 40+ dilde sonucu hizlica alin. Zaman kodlariniz otomatik korunur.",
		Icon:        "zap",
	},
	{
		Title:       "Cam efektli tasarim",
		Description: "Modern cam efektli arayuz, sistem temasi ile senkron gece/gunduz modlari sunar.",
		Icon:        "panels-top-left",
	},
	{
		Title:       "Guvenli altyapi",
		Description: "Cloudflare Turnstile, hiz sinirlama ve oturum parmak izi ile isteklere ekstra koruma ekler.",
		Icon:        "shield-check",
	},
}

var workflowSteps = []render.Step{
	{
		Step:        "Kaynak sec",
		Description: "Video baglantisini birakin veya altyazi dosyanizi (.srt, .vtt) cam etkili yukleyicide secin.",
		Icon:        "file-text",
	},
	{
		Step:        "Dil ve kurallari ayarla",
		Description: "Hedef dilinizi belirleyin, teknik terimleri koruyacak akilli filtreleri devreye alin.",
		Icon:        "sliders-horizontal",
	},
	{
		Step:        "Kontrol et ve yayinla",
		Description: "AI onerileri ile ceviriyi inceleyin, tek tikla yayina hazir cam paketler olusturun.",
		Icon:        "sparkles",
	},
}

func securityChecks(l *Locals, ttl time.Duration) []render.SecurityCheck {
	turnstile := render.SecurityCheck{
		Title:  "Cloudflare Turnstile",
		Status: "Bekliyor",
		Detail: "Devam etmek icin once Turnstile dogrulamasini tamamlamaniz gerekir.",
	}
	if l.Trust.Verified {
		turnstile.Status = "Gecildi"
		turnstile.Detail = fmt.Sprintf("Bu oturum son %s icinde dogrulamayi tamamladi.", humanDuration(ttl))
	}
	return []render.SecurityCheck{
		turnstile,
		{
			Title:  "Oturum parmak izi",
			Status: l.Fingerprint.Address,
			Detail: "Tarayici: " + l.Fingerprint.UserAgent,
		},
		{
			Title:  "Hiz sinirlama",
			Status: "Dakika basina kullanici limitleri",
			Detail: "Arka planda calisan hiz sinirlama katmani API pozisyonunu korur.",
		},
		{
			Title:  "Veri saklama",
			Status: "24 saat gecici depolama",
			Detail: "Yuklenen altyazilar sifrelenir ve 24 saat sonunda otomatik olarak silinir.",
		},
	}
}

func humanDuration(d time.Duration) string {
	if d >= time.Hour && d%time.Hour == 0 {
		return fmt.Sprintf("%d saat", int(d/time.Hour))
	}
	return fmt.Sprintf("%d dakika", int(d/time.Minute))
}
