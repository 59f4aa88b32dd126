package errorsx

import (
	"strings"

	"github.com/harunnryd/mimo/pkg/events"
)

var cameraMessages = map[Kind]string{
	KindPermissionDenied:        "Permission refusée. Clique sur l'icône 📷 dans la barre d'adresse et autorise l'accès à la caméra.",
	KindDeviceNotFound:          "Aucune caméra trouvée. Assure-toi qu'une caméra est connectée à ton appareil.",
	KindDeviceBusy:              "La caméra est utilisée par une autre application. Ferme les autres applications qui utilisent la caméra.",
	KindConstraintUnsatisfiable: "Les paramètres de la caméra ne sont pas supportés. Essaie une autre caméra.",
	KindInsecureContext:         "Erreur de sécurité. Assure-toi que la page est en HTTPS ou sur localhost.",
	KindUnsupported:             "Ton navigateur ne supporte pas l'accès à la caméra. Essaie Chrome, Firefox ou Safari.",
	KindTimeout:                 "La caméra met trop de temps à démarrer. Réessaie!",
	KindNoSignal:                "Aucune main détectée. Place ta main devant la caméra!",
}

var speechMessages = map[Kind]string{
	KindPermissionDenied:        "Permission du microphone refusée. Clique sur l'icône 🎤 dans la barre d'adresse et autorise le microphone.",
	KindDeviceNotFound:          "Aucun microphone trouvé. Vérifie qu'un microphone est connecté.",
	KindDeviceBusy:              "Le microphone est utilisé par une autre application.",
	KindConstraintUnsatisfiable: "La langue demandée n'est pas supportée par la reconnaissance vocale.",
	KindInsecureContext:         "Erreur de sécurité. Assure-toi que la page est en HTTPS ou sur localhost.",
	KindUnsupported:             "Ton navigateur ne supporte pas la reconnaissance vocale.",
	KindTimeout:                 "Le microphone met trop de temps à démarrer. Réessaie!",
	KindNoSignal:                "Aucune parole détectée. Parle plus fort ou rapproche-toi du microphone!",
}

var cameraHints = map[Kind]string{
	KindPermissionDenied: "Sélectionne \"Toujours autoriser\" pour ce site puis recharge la page, ou utilise le mode démo.",
	KindDeviceNotFound:   "Branche une caméra ou utilise le mode démo (pas besoin de caméra!).",
	KindDeviceBusy:       "Ferme les autres applications puis réessaie, ou utilise le mode démo.",
	KindInsecureContext:  "Ouvre l'application en HTTPS ou sur localhost.",
	KindUnsupported:      "Utilise le mode démo: clique sur un geste pour l'essayer immédiatement.",
}

var speechHints = map[Kind]string{
	KindPermissionDenied: "Clique sur l'icône 🎤 dans la barre d'adresse, sélectionne \"Toujours autoriser\" et recharge la page.",
	KindNoSignal:         "Parle clairement, pas trop vite, dans un endroit calme, puis réessaie.",
	KindUnsupported:      "Chrome, Edge et Safari (iOS 14.5+) sont supportés. Tu peux aussi utiliser le mode texte.",
	KindUnknown:          "Clique sur une suggestion si la reconnaissance ne marche pas.",
}

// Message returns the user-facing description of a failure. Unknown
// failures keep the raw platform message so nothing is lost.
func Message(m events.Modality, kind Kind, raw, name string) string {
	if m == events.ModalityVoice && kind == KindUnknown && strings.EqualFold(name, "network") {
		return "Erreur réseau. Vérifie ta connexion Internet."
	}
	table := cameraMessages
	if m == events.ModalityVoice {
		table = speechMessages
	}
	if msg, ok := table[kind]; ok {
		return msg
	}
	detail := strings.TrimSpace(raw)
	if detail == "" {
		detail = strings.TrimSpace(name)
	}
	if m == events.ModalityVoice {
		if detail == "" {
			return "Erreur lors du démarrage. Attends quelques secondes et réessaie!"
		}
		return "Erreur: " + detail + ". Réessaie!"
	}
	if detail == "" {
		return "Erreur: Impossible d'accéder à la caméra."
	}
	return "Erreur: " + detail
}

// Hint returns the remediation advice shown next to an error message.
func Hint(m events.Modality, kind Kind) string {
	table := cameraHints
	if m == events.ModalityVoice {
		table = speechHints
	}
	if h, ok := table[kind]; ok {
		return h
	}
	if m == events.ModalityGesture {
		return "Réessaie, ou utilise le mode démo ci-dessous (pas besoin de caméra!)."
	}
	return "Réessaie dans quelques secondes."
}
